package models

import "time"

// Direction is the side of a setup or trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Strength labels how far price has diverged from the pivot in the
// setup's favorable direction.
type Strength string

const (
	StrengthBuilding Strength = "BUILDING"
	StrengthModerate Strength = "MODERATE"
	StrengthStrong   Strength = "STRONG"
)

// MoveType records which side of the trailing range a breakout cleared.
type MoveType string

const (
	MoveNewHigh MoveType = "NEW HIGH"
	MoveNewLow  MoveType = "NEW LOW"
)

// Pivot is the reference price captured at a boundary occurrence.
// At most one pivot exists per (symbol, occurrence).
type Pivot struct {
	Symbol     string
	Boundary   string
	OccurredAt time.Time
	CapturedAt time.Time
	Price      float64
}

// Setup is a directional bias inferred from divergence off a pivot.
// CurrentPrice and Strength are refreshed in place on each tick.
type Setup struct {
	Symbol       string
	Boundary     string
	Direction    Direction
	Strength     Strength
	PivotPrice   float64
	CurrentPrice float64
	CreatedAt    time.Time
}

// PendingTrade is a recommended limit order produced by a structural
// breakout beyond the trailing range. Never overwritten once created
// for its key.
type PendingTrade struct {
	Symbol         string
	Boundary       string
	Direction      Direction
	PivotPrice     float64
	ReferencePrice float64
	BreakPrice     float64
	MoveType       MoveType
	CreatedAt      time.Time
}

// OpenTrade is created by consuming exactly one PendingTrade when price
// crosses back through the pivot. Entry is always the pivot price.
type OpenTrade struct {
	Symbol         string
	Boundary       string
	Direction      Direction
	EntryPrice     float64
	ExecutionPrice float64
	ExecutedAt     time.Time
}
