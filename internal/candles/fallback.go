package candles

import (
	"context"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/domain/repository"
	"PriceWorm/pkg/logger"
)

// FallbackSource tries a primary candle source and falls through to a
// secondary one when the primary fails. Both failing yields the
// secondary's error; absence is still reported, never fabricated.
type FallbackSource struct {
	primary   repository.CandleSource
	secondary repository.CandleSource
	logger    *logger.Logger
}

// NewFallbackSource chains two candle sources.
func NewFallbackSource(primary, secondary repository.CandleSource, log *logger.Logger) *FallbackSource {
	return &FallbackSource{primary: primary, secondary: secondary, logger: log}
}

// Fetch implements repository.CandleSource.
func (s *FallbackSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	candles, err := s.primary.Fetch(ctx, symbol, start, end)
	if err == nil {
		return candles, nil
	}
	if s.secondary == nil {
		return nil, err
	}

	s.logger.Warn("primary candle source failed, trying secondary",
		logger.String("symbol", symbol),
		logger.Error(err))
	return s.secondary.Fetch(ctx, symbol, start, end)
}
