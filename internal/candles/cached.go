package candles

import (
	"context"
	"encoding/json"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/pkg/cache"
	"PriceWorm/pkg/logger"
)

// CachedSource serves closed-range fetches from cache. Only ranges that
// ended at least a minute ago are cacheable: a still-open range can gain
// candles, so it always goes to the inner source.
type CachedSource struct {
	inner  FetchSource
	cache  cache.Service
	ttl    time.Duration
	logger *logger.Logger
}

// FetchSource is the fetch-only part of a candle source.
type FetchSource interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error)
}

func NewCachedSource(inner FetchSource, c cache.Service, ttl time.Duration, log *logger.Logger) *CachedSource {
	return &CachedSource{inner: inner, cache: c, ttl: ttl, logger: log}
}

func (s *CachedSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	if end.After(time.Now().Add(-time.Minute)) {
		return s.inner.Fetch(ctx, symbol, start, end)
	}

	key := cache.GenerateKeyWithParams("candles", symbol, start.Unix(), end.Unix())

	var raw string
	if err := s.cache.Get(ctx, key, &raw); err == nil {
		var cached []models.Candle
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
	}

	fetched, err := s.inner.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(fetched); err == nil {
		if err := s.cache.Set(ctx, key, string(b), s.ttl); err != nil {
			s.logger.Debug("candle cache store failed",
				logger.String("symbol", symbol),
				logger.Error(err))
		}
	}
	return fetched, nil
}
