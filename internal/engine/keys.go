package engine

import "time"

// PivotKey identifies one pivot: a symbol paired with a concrete
// boundary occurrence instant. Typed keys avoid the collisions that
// formatted-timestamp strings invite.
type PivotKey struct {
	Symbol     string
	OccurredAt time.Time
}

// TradeKey identifies a setup, pending trade, or open trade: one slot
// per symbol per boundary occurrence bucket.
type TradeKey struct {
	Symbol     string
	Boundary   string
	OccurredAt time.Time
}

// ProximityKey guards the one-shot proximity alert per pivot lifetime.
type ProximityKey struct {
	Symbol   string
	Boundary string
}
