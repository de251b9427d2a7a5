package alert

import (
	"testing"
	"time"

	"PriceWorm/internal/boundary"
	"PriceWorm/internal/domain/models"
	"PriceWorm/pkg/logger"
)

var sessionAnchors = []models.Anchor{
	{Name: "asia", Hour: 20, Minute: 0},
	{Name: "london", Hour: 2, Minute: 0},
	{Name: "ny_am", Hour: 9, Minute: 30},
	{Name: "ny_lunch", Hour: 12, Minute: 0},
	{Name: "ny_pm", Hour: 13, Minute: 30},
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestScheduler(t *testing.T, offsets []int) *Scheduler {
	t.Helper()
	sessions := boundary.New(sessionAnchors, time.UTC)
	s, err := New(sessions, offsets, testLogger(t))
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return s
}

func TestValidateOffsets(t *testing.T) {
	if err := ValidateOffsets([]int{1, 15, 30}); err != nil {
		t.Errorf("allowed offsets rejected: %v", err)
	}
	if err := ValidateOffsets([]int{15, 75}); err == nil {
		t.Error("offset 75 must be rejected")
	}
	if err := ValidateOffsets(nil); err == nil {
		t.Error("empty offsets must be rejected")
	}
}

func TestBeforeAlertDueInsideWindow(t *testing.T) {
	s := newTestScheduler(t, []int{15})
	occ := models.Occurrence{Name: "midnight", At: time.Date(2024, 3, 15, 0, 46, 0, 0, time.UTC)}

	// 15 minutes before, 30 seconds into the minute
	now := occ.At.Add(-15 * time.Minute).Add(30 * time.Second)
	due := s.Due(occ, now, "chat-1")
	if len(due) != 1 {
		t.Fatalf("expected one due alert, got %d", len(due))
	}
	n := due[0]
	if n.Phase != models.PhaseBefore || n.OffsetMinutes != 15 {
		t.Errorf("unexpected intent: %+v", n)
	}
	if n.Recipient != "chat-1" {
		t.Errorf("recipient: got %q", n.Recipient)
	}
}

func TestAlertNotDueOutsideWindow(t *testing.T) {
	s := newTestScheduler(t, []int{15})
	occ := models.Occurrence{Name: "midnight", At: time.Date(2024, 3, 15, 0, 46, 0, 0, time.UTC)}

	// 75 minutes after: no configured alert instant falls here
	if due := s.Due(occ, occ.At.Add(75*time.Minute), "chat-1"); len(due) != 0 {
		t.Errorf("expected nothing due at T+75, got %d", len(due))
	}
	// two minutes past the before-instant: window has closed
	if due := s.Due(occ, occ.At.Add(-13*time.Minute), "chat-1"); len(due) != 0 {
		t.Errorf("expected nothing due past the window, got %d", len(due))
	}
}

func TestDuplicateKeySuppressed(t *testing.T) {
	s := newTestScheduler(t, []int{5})
	occ := models.Occurrence{Name: "premarket", At: time.Date(2024, 3, 15, 6, 43, 0, 0, time.UTC)}
	now := occ.At.Add(-5 * time.Minute)

	if due := s.Due(occ, now, "chat-1"); len(due) != 1 {
		t.Fatalf("first call: expected one due alert, got %d", len(due))
	}
	// same minute, same key: already recorded
	if due := s.Due(occ, now.Add(20*time.Second), "chat-1"); len(due) != 0 {
		t.Errorf("second call must be deduplicated, got %d", len(due))
	}
	// a different recipient is a different key
	if due := s.Due(occ, now, "chat-2"); len(due) != 1 {
		t.Errorf("other recipient should still be due, got %d", len(due))
	}
}

func TestAfterAlertDueAndCapped(t *testing.T) {
	s := newTestScheduler(t, []int{15})
	// midnight 00:46: next session is london 02:00, cap 03:00
	occ := models.Occurrence{Name: "midnight", At: time.Date(2024, 3, 15, 0, 46, 0, 0, time.UTC)}

	due := s.Due(occ, occ.At.Add(15*time.Minute), "chat-1")
	if len(due) != 1 || due[0].Phase != models.PhaseAfter {
		t.Fatalf("expected one after alert at T+15, got %+v", due)
	}

	want := time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC)
	if got := s.AfterDeadline(occ); !got.Equal(want) {
		t.Errorf("after deadline: got %v, want %v", got, want)
	}
}

func TestAfterAlertSuppressedPastDeadline(t *testing.T) {
	sessions := boundary.New(sessionAnchors, time.UTC)
	// 30-second tick so a window can straddle the deadline precisely
	s, err := New(sessions, []int{15}, testLogger(t), WithTick(30*time.Second))
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	// ny_pm wormhole-style occurrence at 13:29: next session 13:30, cap 14:30.
	// Use a synthetic occurrence late enough that T+offset passes the cap.
	occ := models.Occurrence{Name: "late", At: time.Date(2024, 3, 15, 14, 20, 0, 0, time.UTC)}
	// next session after 14:20 is asia 20:00, cap 21:00: within cap, due
	if due := s.Due(occ, occ.At.Add(15*time.Minute), "chat-1"); len(due) != 1 {
		t.Fatalf("expected after alert inside cap, got %d", len(due))
	}

	// shrink the cap by using a sessions set whose next open already passed
	tight := boundary.New([]models.Anchor{{Name: "open", Hour: 14, Minute: 21}}, time.UTC)
	s2, err := New(tight, []int{15}, testLogger(t))
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	// cap = 14:21 + 1h = 15:21; the T+15 instant 14:35 is inside, but a
	// now past the cap is suppressed even if the key was never recorded
	if due := s2.Due(occ, occ.At.Add(70*time.Minute), "chat-1"); len(due) != 0 {
		t.Errorf("after alert past the session cap must be suppressed")
	}
	if got, want := s2.AfterDeadline(occ), time.Date(2024, 3, 15, 15, 21, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("after deadline: got %v, want %v", got, want)
	}
}

func TestBeforeAlertIgnoresDeadline(t *testing.T) {
	// the cap applies to after alerts only
	tight := boundary.New([]models.Anchor{{Name: "open", Hour: 0, Minute: 50}}, time.UTC)
	s, err := New(tight, []int{1}, testLogger(t))
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	occ := models.Occurrence{Name: "midnight", At: time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC)}
	if due := s.Due(occ, occ.At.Add(-time.Minute), "chat-1"); len(due) != 1 {
		t.Errorf("before alert must not be capped, got %d", len(due))
	}
}

func TestPurgeExpiresLedger(t *testing.T) {
	s := newTestScheduler(t, []int{5})
	occ := models.Occurrence{Name: "midday", At: time.Date(2024, 3, 15, 11, 57, 0, 0, time.UTC)}
	now := occ.At.Add(-5 * time.Minute)

	if due := s.Due(occ, now, "chat-1"); len(due) != 1 {
		t.Fatalf("expected one due alert")
	}
	s.Purge(now.Add(25 * time.Hour))

	// same key after retention: ledger record is gone, window re-checked
	if due := s.Due(occ, now, "chat-1"); len(due) != 1 {
		t.Errorf("purged key should be due again inside its window")
	}
}
