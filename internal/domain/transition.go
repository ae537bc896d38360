package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransitionKind classifies how a fill changed an account's position.
type TransitionKind string

const (
	TransitionOpen     TransitionKind = "OPEN"
	TransitionClose    TransitionKind = "CLOSE"
	TransitionIncrease TransitionKind = "INCREASE"
	TransitionDecrease TransitionKind = "DECREASE"
	TransitionReverse  TransitionKind = "REVERSE"

	// TransitionUnknown is a terminal classification meaning "suppress". It is
	// never emitted.
	TransitionUnknown TransitionKind = "UNKNOWN"
)

// TransitionKinds lists every emitted kind in display order.
var TransitionKinds = []TransitionKind{
	TransitionOpen,
	TransitionClose,
	TransitionIncrease,
	TransitionDecrease,
	TransitionReverse,
}

// ParseTransitionKind returns the kind named by s (case-sensitive upper form)
// and whether it is one of the emitted kinds.
func ParseTransitionKind(s string) (TransitionKind, bool) {
	for _, k := range TransitionKinds {
		if string(k) == s {
			return k, true
		}
	}
	return TransitionUnknown, false
}

// Direction is the facing of a position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// TransitionEvent is the classifier's output. Direction is the facing after
// the fill, or the facing just closed for CLOSE. Events are values: the
// producer owns them and passes copies downstream.
type TransitionEvent struct {
	ID          string          `json:"id"` // assigned by the pipeline; journal and archive key only
	Kind        TransitionKind  `json:"kind"`
	Coin        string          `json:"coin"`
	Account     string          `json:"account"`
	Direction   Direction       `json:"direction"`
	Size        decimal.Decimal `json:"size"`
	Price       decimal.Decimal `json:"price"`
	TimestampMs int64           `json:"timestamp_ms"`
	Hash        string          `json:"hash,omitempty"`
	ClosedPnl   decimal.Decimal `json:"closed_pnl"`
}

// Time returns the fill time in UTC.
func (e TransitionEvent) Time() time.Time {
	return time.UnixMilli(e.TimestampMs).UTC()
}
