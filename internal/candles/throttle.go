package candles

import (
	"context"
	"fmt"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/domain/repository"
	"PriceWorm/internal/service/ratelimit"
)

// ThrottledSource caps the outbound REST request rate of a source. An
// exhausted budget reports unavailable, which lets a fallback chain try
// the next exchange instead of hammering this one.
type ThrottledSource struct {
	inner   ExchangeSource
	limiter *ratelimit.Limiter
	name    string

	capacity  float64
	refillSec float64
}

// ExchangeSource is a source that serves both candle ranges and spot quotes.
type ExchangeSource interface {
	repository.CandleSource
	repository.Quoter
}

func NewThrottledSource(inner ExchangeSource, limiter *ratelimit.Limiter, name string, capacity, refillPerSec float64) *ThrottledSource {
	return &ThrottledSource{
		inner:     inner,
		limiter:   limiter,
		name:      name,
		capacity:  capacity,
		refillSec: refillPerSec,
	}
}

func (s *ThrottledSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	if !s.limiter.Allow(s.name+":fetch", s.capacity, s.refillSec) {
		return nil, fmt.Errorf("%s fetch throttled: %w", s.name, repository.ErrUnavailable)
	}
	return s.inner.Fetch(ctx, symbol, start, end)
}

func (s *ThrottledSource) Quote(ctx context.Context, symbol string) (float64, error) {
	if !s.limiter.Allow(s.name+":quote", s.capacity, s.refillSec) {
		return 0, fmt.Errorf("%s quote throttled: %w", s.name, repository.ErrUnavailable)
	}
	return s.inner.Quote(ctx, symbol)
}
