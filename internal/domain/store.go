package domain

import (
	"context"
	"io"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Account string
	Limit   int
	Offset  int
}

// TransitionStore persists emitted transition events. It is an append-only
// journal; position state is never stored.
type TransitionStore interface {
	Insert(ctx context.Context, ev TransitionEvent) error
	ListRecent(ctx context.Context, opts ListOpts) ([]TransitionEvent, error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
