package domain

import "errors"

var (
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrPipelineClosed = errors.New("pipeline closed")
	ErrNoChannels     = errors.New("no notification channels configured")

	// ErrMalformedFill marks fills the classifier cannot read. ErrAmbiguous
	// marks readable fills that match no transition. Both mean "no signal".
	ErrMalformedFill = errors.New("malformed fill")
	ErrAmbiguous     = errors.New("ambiguous transition")
)
