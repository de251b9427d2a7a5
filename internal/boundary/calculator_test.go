package boundary

import (
	"testing"
	"time"

	"PriceWorm/internal/domain/models"
)

var testAnchors = []models.Anchor{
	{Name: "midnight", Hour: 0, Minute: 46},
	{Name: "premarket", Hour: 6, Minute: 43},
	{Name: "midday", Hour: 11, Minute: 57},
	{Name: "afterhours", Hour: 17, Minute: 32},
}

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestOccurrencesSortedAndSpanThreeDays(t *testing.T) {
	loc := mustLoc(t)
	c := New(testAnchors, loc)

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, loc)
	occs := c.Occurrences(now)

	if len(occs) != len(testAnchors)*3 {
		t.Fatalf("expected %d occurrences, got %d", len(testAnchors)*3, len(occs))
	}
	for i := 1; i < len(occs); i++ {
		if occs[i].At.Before(occs[i-1].At) {
			t.Errorf("occurrences not sorted at index %d: %v after %v", i, occs[i-1].At, occs[i].At)
		}
	}
	if occs[0].At.Day() != 14 {
		t.Errorf("first occurrence should fall on the previous day, got %v", occs[0].At)
	}
	if occs[len(occs)-1].At.Day() != 16 {
		t.Errorf("last occurrence should fall on the next day, got %v", occs[len(occs)-1].At)
	}
}

func TestResolveEveryInstantHasExactlyOneWindow(t *testing.T) {
	loc := mustLoc(t)
	c := New(testAnchors, loc)

	// sweep a full day at 7-minute steps; each instant must land in
	// exactly the half-open window [Current, Next)
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, loc)
	for m := 0; m < 24*60; m += 7 {
		now := start.Add(time.Duration(m) * time.Minute)
		s := c.Resolve(now, 0)

		w := models.Window{Start: s.Current, End: s.Next}
		if !w.Contains(now) {
			t.Fatalf("at %v: window [%v, %v) does not contain now", now, w.Start.At, w.End.At)
		}
		if s.Current.At.After(now) {
			t.Fatalf("at %v: current occurrence %v is in the future", now, s.Current.At)
		}
		if !s.Next.At.After(now) {
			t.Fatalf("at %v: next occurrence %v is not in the future", now, s.Next.At)
		}
	}
}

func TestResolveMidnightWrap(t *testing.T) {
	loc := mustLoc(t)
	c := New(testAnchors, loc)

	// just after midnight but before the 00:46 anchor: the active window
	// started at the previous day's 17:32
	now := time.Date(2024, 3, 15, 0, 10, 0, 0, loc)
	s := c.Resolve(now, 0)

	if s.Current.Name != "afterhours" {
		t.Errorf("expected afterhours active, got %q", s.Current.Name)
	}
	if s.Current.At.Day() != 14 {
		t.Errorf("expected current occurrence on the 14th, got %v", s.Current.At)
	}
	if s.Next.Name != "midnight" || s.Next.At.Day() != 15 {
		t.Errorf("expected next = midnight on the 15th, got %q at %v", s.Next.Name, s.Next.At)
	}
}

func TestResolveExactBoundaryInstant(t *testing.T) {
	loc := mustLoc(t)
	c := New(testAnchors, loc)

	// at exactly 11:57 the midday window has begun (half-open semantics)
	now := time.Date(2024, 3, 15, 11, 57, 0, 0, loc)
	s := c.Resolve(now, 0)

	if s.Current.Name != "midday" {
		t.Errorf("expected midday active at its own instant, got %q", s.Current.Name)
	}
	if s.Next.Name != "afterhours" {
		t.Errorf("expected next = afterhours, got %q", s.Next.Name)
	}
}

func TestResolvePreviousWindowsContiguous(t *testing.T) {
	loc := mustLoc(t)
	c := New(testAnchors, loc)

	now := time.Date(2024, 3, 15, 18, 0, 0, 0, loc)
	s := c.Resolve(now, 3)

	if len(s.Previous) != 3 {
		t.Fatalf("expected 3 previous windows, got %d", len(s.Previous))
	}
	// most recent first; each window ends where the newer one starts
	if !s.Previous[0].End.At.Equal(s.Current.At) {
		t.Errorf("previous[0] should end at the current occurrence")
	}
	for i := 1; i < len(s.Previous); i++ {
		if !s.Previous[i].End.At.Equal(s.Previous[i-1].Start.At) {
			t.Errorf("previous windows not contiguous at index %d", i)
		}
	}
	if s.Previous[0].Start.Name != "midday" {
		t.Errorf("expected most recent closed window to start at midday, got %q", s.Previous[0].Start.Name)
	}
}

func TestNextAfter(t *testing.T) {
	loc := mustLoc(t)
	c := New(testAnchors, loc)

	at := time.Date(2024, 3, 15, 17, 32, 0, 0, loc)
	next, ok := c.NextAfter(at)
	if !ok {
		t.Fatal("expected a next occurrence")
	}
	if next.Name != "midnight" || next.At.Day() != 16 {
		t.Errorf("expected midnight on the 16th, got %q at %v", next.Name, next.At)
	}
}

func TestUntilNext(t *testing.T) {
	loc := mustLoc(t)
	c := New(testAnchors, loc)

	now := time.Date(2024, 3, 15, 11, 0, 0, 0, loc)
	s := c.Resolve(now, 0)
	if got := s.UntilNext(now); got != 57*time.Minute {
		t.Errorf("expected 57m until midday, got %v", got)
	}
}
