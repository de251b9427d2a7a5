package window

import (
	"math"
	"testing"
	"time"

	"PriceWorm/internal/domain/models"
)

func mkCandle(i int, open, high, low, close, vol float64) models.Candle {
	return models.Candle{
		OpenTime: time.Date(2024, 3, 15, 10, i, 0, 0, time.UTC),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   vol,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeEmpty(t *testing.T) {
	if _, ok := Compute(nil); ok {
		t.Fatal("expected no metrics for an empty candle slice")
	}
}

func TestComputeOHLCV(t *testing.T) {
	candles := []models.Candle{
		mkCandle(0, 100, 105, 99, 104, 10),
		mkCandle(1, 104, 110, 103, 108, 20),
		mkCandle(2, 108, 109, 101, 102, 5),
	}
	m, ok := Compute(candles)
	if !ok {
		t.Fatal("expected metrics")
	}
	if m.Open != 100 || m.Close != 102 {
		t.Errorf("open/close: got %v/%v", m.Open, m.Close)
	}
	if m.High != 110 || m.Low != 99 {
		t.Errorf("high/low: got %v/%v", m.High, m.Low)
	}
	if m.Volume != 35 {
		t.Errorf("volume: got %v", m.Volume)
	}
	if m.CandleCount != 3 {
		t.Errorf("candle count: got %d", m.CandleCount)
	}
	if !almostEqual(m.ChangePct, 2.0) {
		t.Errorf("change pct: got %v", m.ChangePct)
	}
}

func TestComputeVWAPWeighting(t *testing.T) {
	// all the volume sits on one candle, so VWAP must track its close
	candles := []models.Candle{
		mkCandle(0, 100, 100, 100, 100, 0),
		mkCandle(1, 100, 200, 100, 200, 50),
		mkCandle(2, 200, 200, 100, 100, 0),
	}
	m, ok := Compute(candles)
	if !ok {
		t.Fatal("expected metrics")
	}
	if !m.VWAPValid {
		t.Fatal("expected a valid VWAP")
	}
	if !almostEqual(m.VWAP, 200) {
		t.Errorf("vwap: got %v, want 200", m.VWAP)
	}
}

func TestComputeVWAPPartition(t *testing.T) {
	// splitting a window into disjoint subsets and recombining the
	// partial VWAPs volume-weighted must reproduce the whole-window VWAP
	candles := []models.Candle{
		mkCandle(0, 100, 105, 99, 104, 10),
		mkCandle(1, 104, 110, 103, 108, 20),
		mkCandle(2, 108, 109, 101, 102, 5),
		mkCandle(3, 102, 103, 100, 101, 40),
		mkCandle(4, 101, 106, 101, 105, 15),
	}
	whole, ok := Compute(candles)
	if !ok || !whole.VWAPValid {
		t.Fatal("expected a valid whole-window VWAP")
	}

	splits := [][2][]models.Candle{
		{candles[:2], candles[2:]},
		{{candles[0], candles[2], candles[4]}, {candles[1], candles[3]}},
	}
	for i, split := range splits {
		a, _ := Compute(split[0])
		b, _ := Compute(split[1])
		if !a.VWAPValid || !b.VWAPValid {
			t.Fatalf("split %d: expected valid partial VWAPs", i)
		}
		combined := (a.VWAP*a.Volume + b.VWAP*b.Volume) / (a.Volume + b.Volume)
		if !almostEqual(whole.VWAP, combined) {
			t.Errorf("split %d: combined vwap %v, whole-window %v", i, combined, whole.VWAP)
		}
	}
}

func TestComputeVWAPZeroVolume(t *testing.T) {
	candles := []models.Candle{
		mkCandle(0, 100, 101, 99, 100, 0),
		mkCandle(1, 100, 102, 100, 101, 0),
	}
	m, ok := Compute(candles)
	if !ok {
		t.Fatal("expected metrics")
	}
	if m.VWAPValid {
		t.Error("VWAP must be absent when no volume traded")
	}
	if m.VWAP != 0 {
		t.Errorf("absent VWAP should carry no value, got %v", m.VWAP)
	}
}

func TestComputeFlatRangeGuards(t *testing.T) {
	// high == low and open == 0: both division guards engage
	candles := []models.Candle{
		{OpenTime: time.Now(), Open: 0, High: 50, Low: 50, Close: 50, Volume: 1},
	}
	m, ok := Compute(candles)
	if !ok {
		t.Fatal("expected metrics")
	}
	if m.ChangePct != 0 {
		t.Errorf("change pct with zero open: got %v", m.ChangePct)
	}
	if m.PositionInRange != 0.5 {
		t.Errorf("position in range with flat range: got %v", m.PositionInRange)
	}
}

func TestTrendClassification(t *testing.T) {
	rising := make([]models.Candle, 10)
	falling := make([]models.Candle, 10)
	flat := make([]models.Candle, 10)
	for i := 0; i < 10; i++ {
		p := 100 + float64(i)
		rising[i] = mkCandle(i, p, p, p, p, 1)
		q := 100 - float64(i)
		falling[i] = mkCandle(i, q, q, q, q, 1)
		flat[i] = mkCandle(i, 100, 100, 100, 100, 1)
	}

	if m, _ := Compute(rising); m.Trend != models.TrendRising {
		t.Errorf("rising series classified as %s (slope %v)", m.Trend, m.SlopePct)
	}
	if m, _ := Compute(falling); m.Trend != models.TrendFalling {
		t.Errorf("falling series classified as %s (slope %v)", m.Trend, m.SlopePct)
	}
	if m, _ := Compute(flat); m.Trend != models.TrendFlat {
		t.Errorf("flat series classified as %s (slope %v)", m.Trend, m.SlopePct)
	}
}

func TestTrendSingleCandleIsFlat(t *testing.T) {
	m, ok := Compute([]models.Candle{mkCandle(0, 100, 101, 99, 100, 1)})
	if !ok {
		t.Fatal("expected metrics")
	}
	if m.Trend != models.TrendFlat || m.SlopePct != 0 {
		t.Errorf("single candle: got trend %s slope %v", m.Trend, m.SlopePct)
	}
}

func TestTrendWithinFlatBand(t *testing.T) {
	// tiny drift well under the 0.1 pct-per-candle band
	candles := make([]models.Candle, 10)
	for i := 0; i < 10; i++ {
		p := 100 + float64(i)*0.01
		candles[i] = mkCandle(i, p, p, p, p, 1)
	}
	m, _ := Compute(candles)
	if m.Trend != models.TrendFlat {
		t.Errorf("drift inside band classified as %s (slope %v)", m.Trend, m.SlopePct)
	}
}
