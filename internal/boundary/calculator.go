package boundary

import (
	"sort"
	"time"

	"PriceWorm/internal/domain/models"
)

// Calculator resolves recurring daily anchors into concrete occurrences.
// It is a pure function of (anchors, now): no state accumulates between
// calls, so it can run on every tick. Occurrence identity is derived from
// the calendar, never stored.
type Calculator struct {
	anchors []models.Anchor
	loc     *time.Location
}

// New creates a calculator for a fixed anchor set in the reference timezone.
func New(anchors []models.Anchor, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	cp := make([]models.Anchor, len(anchors))
	copy(cp, anchors)
	return &Calculator{anchors: cp, loc: loc}
}

// Anchors returns the configured anchor set.
func (c *Calculator) Anchors() []models.Anchor { return c.anchors }

// Location returns the reference timezone.
func (c *Calculator) Location() *time.Location { return c.loc }

// Occurrences generates all anchor occurrences for now's date minus one
// day through plus one day, sorted ascending. The 3-day span keeps
// anchors near midnight correct on both sides of a date rollover.
func (c *Calculator) Occurrences(now time.Time) []models.Occurrence {
	local := now.In(c.loc)
	year, month, day := local.Date()

	occs := make([]models.Occurrence, 0, len(c.anchors)*3)
	for d := -1; d <= 1; d++ {
		for _, a := range c.anchors {
			at := time.Date(year, month, day+d, a.Hour, a.Minute, 0, 0, c.loc)
			occs = append(occs, models.Occurrence{Name: a.Name, At: at})
		}
	}
	sort.Slice(occs, func(i, j int) bool { return occs[i].At.Before(occs[j].At) })
	return occs
}

// Resolve computes the active occurrence, the next boundary, and up to
// lookback previous windows at the given instant.
func (c *Calculator) Resolve(now time.Time, lookback int) models.Schedule {
	occs := c.Occurrences(now)
	if len(occs) == 0 {
		return models.Schedule{}
	}

	// current = greatest occurrence <= now
	cur := -1
	for i, o := range occs {
		if o.At.After(now) {
			break
		}
		cur = i
	}
	if cur < 0 {
		// now precedes every generated occurrence; only possible at the
		// very start of the lookahead span
		cur = 0
	}

	s := models.Schedule{Current: occs[cur]}
	if cur+1 < len(occs) {
		s.Next = occs[cur+1]
	} else {
		s.Next = occs[cur]
	}

	for j := 1; j <= lookback; j++ {
		i := cur - j
		if i < 0 {
			break
		}
		s.Previous = append(s.Previous, models.Window{Start: occs[i], End: occs[i+1]})
	}
	return s
}

// CurrentWindow returns the half-open window containing now.
func (c *Calculator) CurrentWindow(now time.Time) models.Window {
	s := c.Resolve(now, 0)
	return models.Window{Start: s.Current, End: s.Next}
}

// NextAfter returns the earliest occurrence strictly after t, within the
// 3-day generation span around t.
func (c *Calculator) NextAfter(t time.Time) (models.Occurrence, bool) {
	for _, o := range c.Occurrences(t) {
		if o.At.After(t) {
			return o, true
		}
	}
	return models.Occurrence{}, false
}
