package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceWorm/internal/domain/models"
	domrepo "PriceWorm/internal/domain/repository"
	xutil "PriceWorm/pkg/util"
)

// CandlesUseCase provides business logic for retrieving archived candles.
type CandlesUseCase struct {
	archive domrepo.CandleArchive
}

func NewCandlesUseCase(archive domrepo.CandleArchive) *CandlesUseCase {
	return &CandlesUseCase{archive: archive}
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	Count     int
	Candles   []models.Candle
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if uc.archive == nil {
		return nil, fmt.Errorf("candle archive not enabled")
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}
	p.From, p.To = xutil.AlignFromTo(p.From, p.To, string(p.Timeframe))

	candles, err := uc.archive.Query(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[:p.Limit]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
