package domain

// Fill is a single trade execution report for a watched account, as delivered
// by the exchange feed. Numeric fields keep the exchange's decimal-string form;
// parsing happens in the classifier so malformed values degrade to no signal.
type Fill struct {
	Coin           string
	Price          string // decimal string
	Size           string // decimal string, magnitude of this execution
	TimestampMs    int64
	PositionBefore string // signed decimal string: >0 long, <0 short, 0 flat
	Label          string // free-text direction, e.g. "Open Long"
	Account        string // lowercase address; may be empty on the wire

	// Carried through for rendering and the journal. The classifier ignores them.
	Side      string // "B" or "A"
	Hash      string
	Oid       int64
	Tid       int64
	Fee       string
	ClosedPnl string
	Crossed   bool
}

// SubscriptionBatch is one push from a per-account fill subscription. The
// first push after subscribing replays history and has IsSnapshot set.
type SubscriptionBatch struct {
	IsSnapshot bool
	Account    string
	Fills      []Fill
}
