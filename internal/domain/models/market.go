package models

import "time"

// Candle represents a single OHLCV record. Immutable once fetched;
// series are ordered by OpenTime with no duplicate OpenTime per symbol.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Tick is a live price observation for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	At     time.Time
}

// Range holds a rolling high/low over a trailing window of candles.
type Range struct {
	High  float64
	Low   float64
	Count int
}
