package usecase

import (
	"context"
	"testing"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/domain/repository"
)

type queryArchive struct {
	stubArchive
	candles  []models.Candle
	lastFrom time.Time
	lastTo   time.Time
}

func (a *queryArchive) Query(_ context.Context, _ string, from, to time.Time, _ repository.Timeframe) ([]models.Candle, error) {
	a.lastFrom, a.lastTo = from, to
	return a.candles, nil
}

func TestGetCandlesRequiresArchive(t *testing.T) {
	uc := NewCandlesUseCase(nil)
	_, err := uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "BTCUSDT"})
	if err == nil {
		t.Fatal("expected error without archive backend")
	}
}

func TestGetCandlesValidatesParams(t *testing.T) {
	uc := NewCandlesUseCase(&queryArchive{})

	if _, err := uc.GetCandles(context.Background(), GetCandlesParams{}); err == nil {
		t.Fatal("expected error for empty symbol")
	}

	from := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	_, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Symbol: "BTCUSDT",
		From:   from,
		To:     from.Add(-time.Hour),
	})
	if err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestGetCandlesAlignsRangeAndClampsLimit(t *testing.T) {
	archive := &queryArchive{candles: testCandles()}
	uc := NewCandlesUseCase(archive)

	from := time.Date(2024, 3, 15, 10, 17, 30, 0, time.UTC)
	to := time.Date(2024, 3, 15, 15, 45, 12, 0, time.UTC)

	res, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Symbol:    "BTCUSDT",
		From:      from,
		To:        to,
		Timeframe: repository.TF1h,
		Limit:     1,
	})
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}

	if archive.lastFrom.Minute() != 0 || archive.lastTo.Minute() != 0 {
		t.Fatalf("range not hour-aligned: %v .. %v", archive.lastFrom, archive.lastTo)
	}
	if res.Count != 1 || len(res.Candles) != 1 {
		t.Fatalf("limit not applied: count=%d len=%d", res.Count, len(res.Candles))
	}
	if res.Timeframe != "1h" {
		t.Fatalf("timeframe = %q", res.Timeframe)
	}
}
