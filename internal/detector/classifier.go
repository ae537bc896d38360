// Package detector classifies a single fill into a position transition. It is
// pure: the result depends only on the fill, so live fills and historical
// backfill classify identically.
package detector

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uykb/hypejk/internal/domain"
)

// CloseEpsilon is the absolute tolerance, in size units, within which a
// closing fill is treated as flattening the position. It is not relative to
// the position size.
var CloseEpsilon = decimal.New(1, -6)

var (
	ErrEmptyLabel      = fmt.Errorf("detector: empty operation label: %w", domain.ErrMalformedFill)
	ErrMalformedNumber = fmt.Errorf("detector: malformed numeric field: %w", domain.ErrMalformedFill)
	ErrAmbiguous       = fmt.Errorf("detector: %w", domain.ErrAmbiguous)
)

// Classifier exposes Explain as a method so the pipeline can take it behind
// an interface.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Explain implements pipeline.Classifier.
func (c *Classifier) Explain(fill domain.Fill) (domain.TransitionEvent, error) {
	return Explain(fill)
}

// Analyze classifies fill. The boolean is false when the fill produces no
// signal: malformed input and ambiguous transitions both degrade to silence.
func Analyze(fill domain.Fill) (domain.TransitionEvent, bool) {
	ev, err := Explain(fill)
	return ev, err == nil
}

// Explain is Analyze with the reason for a missing signal. The returned error
// wraps ErrEmptyLabel, ErrMalformedNumber or ErrAmbiguous and is meant for
// logging, not for aborting the caller.
func Explain(fill domain.Fill) (domain.TransitionEvent, error) {
	if fill.Label == "" {
		return domain.TransitionEvent{}, ErrEmptyLabel
	}

	// A missing size or start position reads as zero, as the feed omits them
	// for some synthetic fills. Present but malformed values are rejected.
	before, err := parseDecimal("startPosition", fill.PositionBefore, true)
	if err != nil {
		return domain.TransitionEvent{}, err
	}
	sz, err := parseDecimal("sz", fill.Size, true)
	if err != nil {
		return domain.TransitionEvent{}, err
	}
	px, err := parseDecimal("px", fill.Price, false)
	if err != nil {
		return domain.TransitionEvent{}, err
	}

	op := domain.ParseOperation(fill.Label)
	kind, dir := classify(op, domain.ParseSide(fill.Label), before, sz)
	if kind == domain.TransitionUnknown {
		return domain.TransitionEvent{}, fmt.Errorf("%w: %q with start position %s", ErrAmbiguous, fill.Label, before)
	}

	pnl, err := decimal.NewFromString(fill.ClosedPnl)
	if err != nil {
		pnl = decimal.Zero
	}

	return domain.TransitionEvent{
		Kind:        kind,
		Coin:        fill.Coin,
		Account:     fill.Account,
		Direction:   dir,
		Size:        sz,
		Price:       px,
		TimestampMs: fill.TimestampMs,
		Hash:        fill.Hash,
		ClosedPnl:   pnl,
	}, nil
}

// classify applies the decision table in priority order. The flat check wins
// over everything, including labels that say "Close".
func classify(op domain.Operation, side domain.Direction, before, sz decimal.Decimal) (domain.TransitionKind, domain.Direction) {
	if before.IsZero() {
		return domain.TransitionOpen, side
	}

	held := domain.DirectionShort
	if before.IsPositive() {
		held = domain.DirectionLong
	}

	kind := domain.TransitionUnknown
	dir := side

	switch {
	case op.IsClose():
		// Partial closes report the closing side, which is the held side.
		kind = domain.TransitionDecrease
		if sz.Sub(before.Abs()).Abs().LessThan(CloseEpsilon) {
			kind = domain.TransitionClose
		}
		dir = held
	case op.IsOpen() && op.Side() == held:
		kind = domain.TransitionIncrease
		dir = held
	case op.IsOpen():
		kind = domain.TransitionReverse
		dir = op.Side()
	}

	// Final override: a same-side open on a non-flat position is an increase.
	if op.IsOpen() && op.Side() == held {
		kind = domain.TransitionIncrease
	}

	return kind, dir
}

func parseDecimal(field, s string, emptyIsZero bool) (decimal.Decimal, error) {
	if s == "" && emptyIsZero {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s=%q", ErrMalformedNumber, field, s)
	}
	return d, nil
}
