package domain

import "strings"

// Operation is the closed set of directional operations a fill label can
// describe. Labels are parsed once at the boundary with ParseOperation.
type Operation uint8

const (
	OperationUnknown Operation = iota
	OperationOpenLong
	OperationOpenShort
	OperationCloseLong
	OperationCloseShort
	// Labels naming both actions are read as a close that may also add to
	// the held side, so they satisfy IsOpen and IsClose.
	OperationOpenCloseLong
	OperationOpenCloseShort
)

// ParseOperation maps a free-text label onto an Operation using substring
// membership: "Close" selects a close, "Open" an open, "Long" the long side.
// Labels naming neither action are OperationUnknown.
func ParseOperation(label string) Operation {
	isOpen := strings.Contains(label, "Open")
	isClose := strings.Contains(label, "Close")
	isLong := strings.Contains(label, "Long")

	switch {
	case isOpen && isClose && isLong:
		return OperationOpenCloseLong
	case isOpen && isClose:
		return OperationOpenCloseShort
	case isClose && isLong:
		return OperationCloseLong
	case isClose:
		return OperationCloseShort
	case isOpen && isLong:
		return OperationOpenLong
	case isOpen:
		return OperationOpenShort
	default:
		return OperationUnknown
	}
}

// ParseSide returns LONG when the label mentions "Long" and SHORT otherwise.
// It applies to every label, including ones ParseOperation cannot place
// (e.g. "Long > Short").
func ParseSide(label string) Direction {
	if strings.Contains(label, "Long") {
		return DirectionLong
	}
	return DirectionShort
}

// IsOpen reports whether the operation opens or adds exposure.
func (o Operation) IsOpen() bool {
	switch o {
	case OperationOpenLong, OperationOpenShort, OperationOpenCloseLong, OperationOpenCloseShort:
		return true
	}
	return false
}

// IsClose reports whether the operation closes or reduces exposure.
func (o Operation) IsClose() bool {
	switch o {
	case OperationCloseLong, OperationCloseShort, OperationOpenCloseLong, OperationOpenCloseShort:
		return true
	}
	return false
}

// Side returns the facing named by a known operation. Unknown operations
// report SHORT; callers needing the label's side use ParseSide.
func (o Operation) Side() Direction {
	switch o {
	case OperationOpenLong, OperationCloseLong, OperationOpenCloseLong:
		return DirectionLong
	}
	return DirectionShort
}

func (o Operation) String() string {
	switch o {
	case OperationOpenLong:
		return "OPEN_LONG"
	case OperationOpenShort:
		return "OPEN_SHORT"
	case OperationCloseLong:
		return "CLOSE_LONG"
	case OperationCloseShort:
		return "CLOSE_SHORT"
	case OperationOpenCloseLong:
		return "OPEN_CLOSE_LONG"
	case OperationOpenCloseShort:
		return "OPEN_CLOSE_SHORT"
	default:
		return "UNKNOWN"
	}
}
