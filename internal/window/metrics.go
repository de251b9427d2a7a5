package window

import (
	"PriceWorm/internal/domain/models"
)

// Compute derives a metrics snapshot from the candles of one window.
// Candles are assumed ascending by open time. The second return is false
// when no candles are present; a window with no data has no metrics.
func Compute(candles []models.Candle) (models.WindowMetrics, bool) {
	if len(candles) == 0 {
		return models.WindowMetrics{}, false
	}

	m := models.WindowMetrics{
		Open:        candles[0].Open,
		Close:       candles[len(candles)-1].Close,
		High:        candles[0].High,
		Low:         candles[0].Low,
		CandleCount: len(candles),
	}

	var pvSum float64
	for _, c := range candles {
		if c.High > m.High {
			m.High = c.High
		}
		if c.Low < m.Low {
			m.Low = c.Low
		}
		m.Volume += c.Volume
		pvSum += c.Close * c.Volume
	}

	if m.Open != 0 {
		m.ChangePct = (m.Close - m.Open) / m.Open * 100
	}

	if m.High == m.Low {
		m.PositionInRange = 0.5
	} else {
		m.PositionInRange = (m.Close - m.Low) / (m.High - m.Low)
	}

	// VWAP is undefined without traded volume; absence is reported, not
	// substituted with zero
	if m.Volume > 0 {
		m.VWAP = pvSum / m.Volume
		m.VWAPValid = true
	}

	m.Trend, m.SlopePct = trend(candles)
	return m, true
}

// flatBand is the slope band, in percent of mean price per candle,
// inside which a window counts as flat.
const flatBand = 0.1

// trend fits an ordinary least-squares line through the close series and
// classifies its slope relative to the mean price.
func trend(candles []models.Candle) (models.TrendDirection, float64) {
	n := len(candles)
	if n < 2 {
		return models.TrendFlat, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, c := range candles {
		x := float64(i)
		sumX += x
		sumY += c.Close
		sumXY += x * c.Close
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return models.TrendFlat, 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	mean := sumY / fn
	if mean == 0 {
		return models.TrendFlat, 0
	}
	slopePct := slope / mean * 100

	switch {
	case slopePct > flatBand:
		return models.TrendRising, slopePct
	case slopePct < -flatBand:
		return models.TrendFalling, slopePct
	default:
		return models.TrendFlat, slopePct
	}
}
