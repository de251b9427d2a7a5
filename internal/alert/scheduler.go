package alert

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"PriceWorm/internal/boundary"
	"PriceWorm/internal/domain/models"
	"PriceWorm/pkg/logger"
)

// allowedOffsets is the fixed allow-list for per-recipient alert
// offsets, in minutes.
var allowedOffsets = map[int]struct{}{
	1: {}, 3: {}, 5: {}, 12: {}, 15: {}, 24: {}, 30: {},
}

// ValidateOffsets rejects any offset outside the allow-list. Called at
// configuration time so bad values never reach the tick loop.
func ValidateOffsets(offsets []int) error {
	if len(offsets) == 0 {
		return fmt.Errorf("at least one alert offset required")
	}
	for _, m := range offsets {
		if _, ok := allowedOffsets[m]; !ok {
			return fmt.Errorf("alert offset %d not allowed", m)
		}
	}
	return nil
}

// Key is the dedup ledger key: one alert per day, boundary, phase,
// offset, and recipient.
type Key struct {
	Day       time.Time
	Boundary  string
	Phase     models.AlertPhase
	Offset    int
	Recipient string
}

// Scheduler decides which before/after boundary alerts are due at a
// given instant. Decisions are recorded in the ledger atomically with
// being deemed due, so concurrent ticks cannot double-deliver.
type Scheduler struct {
	sessions  *boundary.Calculator
	offsets   []int
	tick      time.Duration
	retention time.Duration
	logger    *logger.Logger

	mu   sync.Mutex
	sent map[Key]time.Time
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithTick overrides the one-minute due-window granularity.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// WithRetention overrides the ledger retention.
func WithRetention(d time.Duration) Option {
	return func(s *Scheduler) { s.retention = d }
}

// New creates a scheduler. sessions is the coarser session-open anchor
// set used only to cap "after" alert duration.
func New(sessions *boundary.Calculator, offsets []int, log *logger.Logger, opts ...Option) (*Scheduler, error) {
	if err := ValidateOffsets(offsets); err != nil {
		return nil, err
	}
	cp := make([]int, len(offsets))
	copy(cp, offsets)
	sort.Ints(cp)

	s := &Scheduler{
		sessions:  sessions,
		offsets:   cp,
		tick:      time.Minute,
		retention: 24 * time.Hour,
		logger:    log,
		sent:      make(map[Key]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Due returns the alert intents due at now for one boundary occurrence
// and recipient, recording each in the ledger as it is deemed due.
func (s *Scheduler) Due(occ models.Occurrence, now time.Time, recipient string) []models.Notification {
	deadline := s.AfterDeadline(occ)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Notification
	for _, m := range s.offsets {
		if n, ok := s.dueOne(occ, models.PhaseBefore, m, now, recipient, deadline); ok {
			out = append(out, n)
		}
		if n, ok := s.dueOne(occ, models.PhaseAfter, m, now, recipient, deadline); ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *Scheduler) dueOne(occ models.Occurrence, phase models.AlertPhase, offset int, now time.Time, recipient string, deadline time.Time) (models.Notification, bool) {
	at := occ.At.Add(-time.Duration(offset) * time.Minute)
	if phase == models.PhaseAfter {
		at = occ.At.Add(time.Duration(offset) * time.Minute)
		// after alerts stop one hour past the next session open
		if !now.Before(deadline) {
			return models.Notification{}, false
		}
	}

	// due window is one tick wide
	if now.Before(at) || !now.Before(at.Add(s.tick)) {
		return models.Notification{}, false
	}

	key := Key{
		Day:       dayOf(occ.At, s.sessions.Location()),
		Boundary:  occ.Name,
		Phase:     phase,
		Offset:    offset,
		Recipient: recipient,
	}
	if _, dup := s.sent[key]; dup {
		return models.Notification{}, false
	}
	s.sent[key] = now

	s.logger.Debug("alert due",
		logger.String("boundary", occ.Name),
		logger.String("phase", string(phase)),
		logger.Int("offset_minutes", offset),
		logger.String("recipient", recipient))

	return models.Notification{
		Kind:          models.KindApproachAlert,
		At:            now,
		Boundary:      occ.Name,
		Recipient:     recipient,
		Phase:         phase,
		OffsetMinutes: offset,
	}, true
}

// AfterDeadline returns the instant past which "after" alerts for the
// occurrence are suppressed: one hour after the first session open
// strictly following it.
func (s *Scheduler) AfterDeadline(occ models.Occurrence) time.Time {
	next, ok := s.sessions.NextAfter(occ.At)
	if !ok {
		return occ.At.Add(time.Hour)
	}
	return next.At.Add(time.Hour)
}

// Purge drops ledger records older than the retention window.
func (s *Scheduler) Purge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, at := range s.sent {
		if now.Sub(at) > s.retention {
			delete(s.sent, key)
		}
	}
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
