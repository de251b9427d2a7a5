package models

import "time"

// Anchor is a recurring daily time-of-day boundary in the reference
// timezone. The set of anchors is fixed at startup.
type Anchor struct {
	Name   string
	Hour   int
	Minute int
}

// Occurrence is one concrete calendar instance of an anchor.
type Occurrence struct {
	Name string
	At   time.Time
}

// Window is the half-open interval [Start.At, End.At) between two
// consecutive occurrences.
type Window struct {
	Start Occurrence
	End   Occurrence
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start.At) && t.Before(w.End.At)
}

// Schedule is the resolved view of an anchor set at a given instant.
type Schedule struct {
	Current  Occurrence
	Next     Occurrence
	Previous []Window
}

// UntilNext returns the remaining time to the next boundary.
func (s Schedule) UntilNext(now time.Time) time.Duration {
	return s.Next.At.Sub(now)
}

// TrendDirection classifies the least-squares slope of a window.
type TrendDirection string

const (
	TrendRising  TrendDirection = "RISING"
	TrendFalling TrendDirection = "FALLING"
	TrendFlat    TrendDirection = "FLAT"
)

// WindowMetrics is a derived, read-only snapshot of the candles inside
// one window. VWAPValid is false when total volume is zero; callers must
// treat that as unknown, not as zero.
type WindowMetrics struct {
	Open            float64
	High            float64
	Low             float64
	Close           float64
	Volume          float64
	ChangePct       float64
	PositionInRange float64
	CandleCount     int
	VWAP            float64
	VWAPValid       bool
	Trend           TrendDirection
	SlopePct        float64
}
