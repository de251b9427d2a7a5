package models

import "time"

// NotificationKind enumerates the structured events the core emits.
// Formatting into human-readable text is a delivery concern.
type NotificationKind string

const (
	KindPivotCaptured NotificationKind = "WORMHOLE_CAPTURED"
	KindSetupFormed   NotificationKind = "SETUP_FORMED"
	KindBreakout      NotificationKind = "BREAKOUT"
	KindRetest        NotificationKind = "RETEST"
	KindExecuted      NotificationKind = "EXECUTED"
	KindApproachAlert NotificationKind = "APPROACH_ALERT"
	KindProximity     NotificationKind = "PIVOT_PROXIMITY"
)

// AlertPhase distinguishes before/after offset alerts around a boundary.
type AlertPhase string

const (
	PhaseBefore AlertPhase = "before"
	PhaseAfter  AlertPhase = "after"
)

// Notification is a structured fact for the delivery collaborator.
// Fields beyond Kind/At are populated per kind.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	At             time.Time        `json:"at"`
	Symbol         string           `json:"symbol,omitempty"`
	Boundary       string           `json:"boundary,omitempty"`
	Recipient      string           `json:"recipient,omitempty"`
	Direction      Direction        `json:"direction,omitempty"`
	Strength       Strength         `json:"strength,omitempty"`
	MoveType       MoveType         `json:"move_type,omitempty"`
	Phase          AlertPhase       `json:"phase,omitempty"`
	OffsetMinutes  int              `json:"offset_minutes,omitempty"`
	Price          float64          `json:"price,omitempty"`
	PivotPrice     float64          `json:"pivot_price,omitempty"`
	ReferencePrice float64          `json:"reference_price,omitempty"`
}
