package repository

import (
	"context"
	"errors"
	"time"

	"PriceWorm/internal/domain/models"
)

// ErrUnavailable signals that a data source could not produce a result
// (network failure, exchange error, empty response). Callers propagate
// absence instead of substituting zeros.
var ErrUnavailable = errors.New("market data unavailable")

// MarketStream is a live price feed (websocket push).
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// CandleSource fetches 1-minute candles confined to [start, end),
// ascending by open time, de-duplicated across pages. A failed fetch
// returns ErrUnavailable (possibly wrapped), never a fabricated series.
type CandleSource interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error)
}

// Quoter fetches the current spot price for a symbol. Used as the poll
// fallback when the stream lapses.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// CandleArchive persists fetched candles and serves range queries from
// local storage.
type CandleArchive interface {
	StoreBatch(ctx context.Context, symbol string, candles []models.Candle) error
	Query(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}

// TickPublisher forwards live ticks to a broker topic.
type TickPublisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	Close() error
}

// NotificationSink consumes structured notification intents.
type NotificationSink interface {
	Emit(ctx context.Context, n models.Notification) error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordTick(symbol string)
	RecordNotification(kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
