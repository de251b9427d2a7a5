package engine

import (
	"time"

	"PriceWorm/internal/domain/models"
)

type rangePoint struct {
	price float64
	at    time.Time
}

// tickRange keeps a trailing window of observed prices for one symbol
// and serves its high/low. Points older than the lookback are pruned on
// every insert.
type tickRange struct {
	lookback time.Duration
	points   []rangePoint
}

func newTickRange(lookback time.Duration) *tickRange {
	return &tickRange{lookback: lookback}
}

func (r *tickRange) add(price float64, at time.Time) {
	r.points = append(r.points, rangePoint{price: price, at: at})
	r.prune(at)
}

func (r *tickRange) prune(now time.Time) {
	cutoff := now.Add(-r.lookback)
	i := 0
	for i < len(r.points) && r.points[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.points = append(r.points[:0], r.points[i:]...)
	}
}

// snapshot returns the trailing high/low. Count zero means no range is
// known yet and breakout checks must not fire.
func (r *tickRange) snapshot(now time.Time) models.Range {
	r.prune(now)
	if len(r.points) == 0 {
		return models.Range{}
	}
	s := models.Range{High: r.points[0].price, Low: r.points[0].price, Count: len(r.points)}
	for _, p := range r.points[1:] {
		if p.price > s.High {
			s.High = p.price
		}
		if p.price < s.Low {
			s.Low = p.price
		}
	}
	return s
}
