package engine

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/domain/repository"
	"PriceWorm/pkg/logger"
)

// Config holds the state-machine thresholds. Percent values are whole
// percents (0.2 means 0.2%).
type Config struct {
	DivergencePct  float64
	BreakoutPct    float64
	RetestPct      float64
	ProximityPct   float64
	RangeLookback  time.Duration
	MinRangePoints int
	SetupHorizon   time.Duration
	Retention      time.Duration
}

// DefaultConfig returns the observed production thresholds.
func DefaultConfig() Config {
	return Config{
		DivergencePct:  0.2,
		BreakoutPct:    0.2,
		RetestPct:      0.3,
		ProximityPct:   0.5,
		RangeLookback:  30 * time.Minute,
		MinRangePoints: 3,
		SetupHorizon:   8 * time.Hour,
		Retention:      24 * time.Hour,
	}
}

type pricePoint struct {
	price float64
	at    time.Time
}

// Engine owns all pivot/setup/trade state for the process. A single
// mutex serializes the two producers (scheduler tick and price feed);
// notifications are collected under the lock and emitted after release
// so the sink's I/O never blocks a concurrent tick.
type Engine struct {
	cfg     Config
	sink    repository.NotificationSink
	metrics repository.Metrics
	logger  *logger.Logger

	mu        sync.Mutex
	prices    map[string]pricePoint
	ranges    map[string]*tickRange
	pivots    map[PivotKey]*models.Pivot
	setups    map[TradeKey]*models.Setup
	pending   map[TradeKey]*models.PendingTrade
	open      map[TradeKey]*models.OpenTrade
	retested  map[TradeKey]struct{}
	proximity map[ProximityKey]struct{}
}

// Option configures the Engine.
type Option func(*Engine)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine with the given thresholds and notification sink.
func New(cfg Config, sink repository.NotificationSink, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		sink:      sink,
		metrics:   noopMetrics{},
		logger:    log,
		prices:    make(map[string]pricePoint),
		ranges:    make(map[string]*tickRange),
		pivots:    make(map[PivotKey]*models.Pivot),
		setups:    make(map[TradeKey]*models.Setup),
		pending:   make(map[TradeKey]*models.PendingTrade),
		open:      make(map[TradeKey]*models.OpenTrade),
		retested:  make(map[TradeKey]struct{}),
		proximity: make(map[ProximityKey]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnPrice ingests one live tick and runs every price-driven transition
// for the symbol. Safe to call at arbitrary frequency from any
// goroutine; per-tick ordering follows call order.
func (e *Engine) OnPrice(ctx context.Context, symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}

	e.mu.Lock()
	e.prices[symbol] = pricePoint{price: price, at: at}
	e.metrics.RecordTick(symbol)
	e.metrics.RecordLastPrice(symbol, price)

	// trailing range is read before this tick joins it, so a new extreme
	// can register as a break of the prior range
	rng := e.rangeFor(symbol).snapshot(at)

	var out []models.Notification
	out = e.checkSetups(symbol, price, at, out)
	out = e.checkRetests(symbol, price, at, out)
	out = e.checkExecutions(symbol, price, at, out)
	out = e.checkBreakouts(symbol, price, rng, at, out)
	out = e.checkProximity(symbol, price, at, out)

	e.rangeFor(symbol).add(price, at)
	e.mu.Unlock()

	e.emit(ctx, out)
}

// CapturePivot records the reference price for a boundary occurrence.
// Fires at most once per (symbol, occurrence): re-entering the window
// is a no-op. Returns false when already captured or no live price is
// cached for the symbol.
func (e *Engine) CapturePivot(ctx context.Context, symbol string, occ models.Occurrence, now time.Time) bool {
	key := PivotKey{Symbol: symbol, OccurredAt: occ.At}

	e.mu.Lock()
	if _, exists := e.pivots[key]; exists {
		e.mu.Unlock()
		e.logger.Debug("pivot already captured",
			logger.String("symbol", symbol),
			logger.String("boundary", occ.Name))
		return false
	}
	pp, ok := e.prices[symbol]
	if !ok {
		e.mu.Unlock()
		e.logger.Warn("no live price for pivot capture",
			logger.String("symbol", symbol),
			logger.String("boundary", occ.Name))
		return false
	}

	p := &models.Pivot{
		Symbol:     symbol,
		Boundary:   occ.Name,
		OccurredAt: occ.At,
		CapturedAt: now,
		Price:      pp.price,
	}
	e.pivots[key] = p
	// a fresh pivot re-arms the one-shot proximity alert
	delete(e.proximity, ProximityKey{Symbol: symbol, Boundary: occ.Name})

	n := models.Notification{
		Kind:     models.KindPivotCaptured,
		At:       now,
		Symbol:   symbol,
		Boundary: occ.Name,
		Price:    pp.price,
	}
	e.mu.Unlock()

	e.logger.Info("pivot captured",
		logger.String("symbol", symbol),
		logger.String("boundary", occ.Name),
		logger.Any("price", pp.price))
	e.emit(ctx, []models.Notification{n})
	return true
}

// checkSetups creates or refreshes the directional setup off the most
// recent pivot. One setup slot per (symbol, occurrence bucket); a new
// divergence in an occupied slot refreshes price and strength in place.
func (e *Engine) checkSetups(symbol string, price float64, at time.Time, out []models.Notification) []models.Notification {
	pivot, ok := e.mostRecentPivotLocked(symbol, at)
	if !ok || pivot.Price == 0 {
		return out
	}

	divergence := (price - pivot.Price) / pivot.Price * 100
	key := TradeKey{Symbol: symbol, Boundary: pivot.Boundary, OccurredAt: pivot.OccurredAt}

	if s, exists := e.setups[key]; exists {
		s.CurrentPrice = price
		s.Strength = strengthOf(favorableDistance(s.Direction, pivot.Price, price))
		return out
	}

	if math.Abs(divergence) <= e.cfg.DivergencePct {
		return out
	}

	dir := models.Long
	if divergence < 0 {
		dir = models.Short
	}
	s := &models.Setup{
		Symbol:       symbol,
		Boundary:     pivot.Boundary,
		Direction:    dir,
		Strength:     strengthOf(math.Abs(divergence)),
		PivotPrice:   pivot.Price,
		CurrentPrice: price,
		CreatedAt:    at,
	}
	e.setups[key] = s

	return append(out, models.Notification{
		Kind:       models.KindSetupFormed,
		At:         at,
		Symbol:     symbol,
		Boundary:   pivot.Boundary,
		Direction:  dir,
		Strength:   s.Strength,
		Price:      price,
		PivotPrice: pivot.Price,
	})
}

// checkBreakouts turns a forming setup into a pending trade when price
// clears the trailing range by the breakout margin on the setup's side.
// The break must also sit on the pivot's side of the market (new high
// above pivot for LONG, new low below for SHORT).
func (e *Engine) checkBreakouts(symbol string, price float64, rng models.Range, at time.Time, out []models.Notification) []models.Notification {
	// a barely-populated range makes every move look like a break
	if rng.Count < e.cfg.MinRangePoints {
		return out
	}

	for key, s := range e.setups {
		if key.Symbol != symbol {
			continue
		}
		if _, occupied := e.pending[key]; occupied {
			continue
		}
		if _, done := e.open[key]; done {
			continue
		}

		margin := e.cfg.BreakoutPct / 100
		var (
			moveType models.MoveType
			refPrice float64
		)
		switch {
		case s.Direction == models.Long && price > rng.High*(1+margin) && price > s.PivotPrice:
			moveType, refPrice = models.MoveNewHigh, rng.High
		case s.Direction == models.Short && price < rng.Low*(1-margin) && price < s.PivotPrice:
			moveType, refPrice = models.MoveNewLow, rng.Low
		default:
			continue
		}

		e.pending[key] = &models.PendingTrade{
			Symbol:         symbol,
			Boundary:       key.Boundary,
			Direction:      s.Direction,
			PivotPrice:     s.PivotPrice,
			ReferencePrice: refPrice,
			BreakPrice:     price,
			MoveType:       moveType,
			CreatedAt:      at,
		}
		out = append(out, models.Notification{
			Kind:           models.KindBreakout,
			At:             at,
			Symbol:         symbol,
			Boundary:       key.Boundary,
			Direction:      s.Direction,
			MoveType:       moveType,
			Price:          price,
			PivotPrice:     s.PivotPrice,
			ReferencePrice: refPrice,
		})
	}
	return out
}

// checkRetests emits the informational retest milestone when price comes
// back near the pivot of a pending trade. The trade persists; the alert
// fires at most once per trade.
func (e *Engine) checkRetests(symbol string, price float64, at time.Time, out []models.Notification) []models.Notification {
	for key, pt := range e.pending {
		if key.Symbol != symbol || pt.PivotPrice == 0 {
			continue
		}
		if _, sent := e.retested[key]; sent {
			continue
		}
		if math.Abs(price-pt.PivotPrice)/pt.PivotPrice*100 >= e.cfg.RetestPct {
			continue
		}

		e.retested[key] = struct{}{}
		out = append(out, models.Notification{
			Kind:       models.KindRetest,
			At:         at,
			Symbol:     symbol,
			Boundary:   key.Boundary,
			Direction:  pt.Direction,
			Price:      price,
			PivotPrice: pt.PivotPrice,
		})
	}
	return out
}

// checkExecutions fills pending trades whose pivot has been crossed in
// the trade's favor. The pending trade is consumed and the open trade
// created under the same lock hold, so the two never coexist.
func (e *Engine) checkExecutions(symbol string, price float64, at time.Time, out []models.Notification) []models.Notification {
	for key, pt := range e.pending {
		if key.Symbol != symbol {
			continue
		}
		filled := (pt.Direction == models.Long && price > pt.PivotPrice) ||
			(pt.Direction == models.Short && price < pt.PivotPrice)
		if !filled {
			continue
		}

		delete(e.pending, key)
		delete(e.retested, key)
		e.open[key] = &models.OpenTrade{
			Symbol:         symbol,
			Boundary:       key.Boundary,
			Direction:      pt.Direction,
			EntryPrice:     pt.PivotPrice,
			ExecutionPrice: price,
			ExecutedAt:     at,
		}
		out = append(out, models.Notification{
			Kind:       models.KindExecuted,
			At:         at,
			Symbol:     symbol,
			Boundary:   key.Boundary,
			Direction:  pt.Direction,
			Price:      price,
			PivotPrice: pt.PivotPrice,
		})
	}
	return out
}

// checkProximity fires the one-shot pivot-proximity alert. Re-armed only
// when a fresh pivot is captured for the same (symbol, boundary).
func (e *Engine) checkProximity(symbol string, price float64, at time.Time, out []models.Notification) []models.Notification {
	pivot, ok := e.mostRecentPivotLocked(symbol, at)
	if !ok || pivot.Price == 0 {
		return out
	}
	key := ProximityKey{Symbol: symbol, Boundary: pivot.Boundary}
	if _, sent := e.proximity[key]; sent {
		return out
	}
	if math.Abs(price-pivot.Price)/pivot.Price*100 >= e.cfg.ProximityPct {
		return out
	}

	e.proximity[key] = struct{}{}
	return append(out, models.Notification{
		Kind:       models.KindProximity,
		At:         at,
		Symbol:     symbol,
		Boundary:   pivot.Boundary,
		Price:      price,
		PivotPrice: pivot.Price,
	})
}

// MostRecentPivot returns the symbol's newest pivot still inside the
// setup horizon.
func (e *Engine) MostRecentPivot(symbol string, now time.Time) (models.Pivot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mostRecentPivotLocked(symbol, now)
}

func (e *Engine) mostRecentPivotLocked(symbol string, now time.Time) (models.Pivot, bool) {
	var best *models.Pivot
	for _, p := range e.pivots {
		if p.Symbol != symbol {
			continue
		}
		if now.Sub(p.CapturedAt) > e.cfg.SetupHorizon {
			continue
		}
		if best == nil || p.CapturedAt.After(best.CapturedAt) {
			best = p
		}
	}
	if best == nil {
		return models.Pivot{}, false
	}
	return *best, true
}

// LastPrice returns the cached live price for a symbol.
func (e *Engine) LastPrice(symbol string) (float64, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pp, ok := e.prices[symbol]
	return pp.price, pp.at, ok
}

// Purge deletes entities past their horizons: setups and pending trades
// after the setup horizon, pivots and open trades after the absolute
// retention. Expired entities are removed, not archived.
func (e *Engine) Purge(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for key, p := range e.pivots {
		if now.Sub(p.CapturedAt) > e.cfg.Retention {
			delete(e.pivots, key)
			removed++
		}
	}
	for key, s := range e.setups {
		if now.Sub(s.CreatedAt) > e.cfg.SetupHorizon {
			delete(e.setups, key)
			removed++
		}
	}
	for key, pt := range e.pending {
		if now.Sub(pt.CreatedAt) > e.cfg.SetupHorizon {
			delete(e.pending, key)
			delete(e.retested, key)
			removed++
		}
	}
	for key, ot := range e.open {
		if now.Sub(ot.ExecutedAt) > e.cfg.Retention {
			delete(e.open, key)
			removed++
		}
	}

	if removed > 0 {
		e.logger.Debug("purged expired state", logger.Int("removed", removed))
	}
}

// Snapshot is a point-in-time copy of the engine's visible state.
type Snapshot struct {
	Pivots  []models.Pivot
	Setups  []models.Setup
	Pending []models.PendingTrade
	Open    []models.OpenTrade
}

// State returns a snapshot-consistent copy for display and API use.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{}
	for _, p := range e.pivots {
		s.Pivots = append(s.Pivots, *p)
	}
	for _, x := range e.setups {
		s.Setups = append(s.Setups, *x)
	}
	for _, x := range e.pending {
		s.Pending = append(s.Pending, *x)
	}
	for _, x := range e.open {
		s.Open = append(s.Open, *x)
	}
	sort.Slice(s.Pivots, func(i, j int) bool { return s.Pivots[i].CapturedAt.Before(s.Pivots[j].CapturedAt) })
	sort.Slice(s.Setups, func(i, j int) bool { return s.Setups[i].CreatedAt.Before(s.Setups[j].CreatedAt) })
	sort.Slice(s.Pending, func(i, j int) bool { return s.Pending[i].CreatedAt.Before(s.Pending[j].CreatedAt) })
	sort.Slice(s.Open, func(i, j int) bool { return s.Open[i].ExecutedAt.Before(s.Open[j].ExecutedAt) })
	return s
}

func (e *Engine) emit(ctx context.Context, notifications []models.Notification) {
	for _, n := range notifications {
		e.metrics.RecordNotification(string(n.Kind))
		if err := e.sink.Emit(ctx, n); err != nil {
			e.metrics.RecordError("notify")
			e.logger.Error("emit notification",
				logger.String("kind", string(n.Kind)),
				logger.Error(err))
		}
	}
}

// favorableDistance is the divergence, in percent, measured in the
// setup's profitable direction. Negative when price moved against it.
func favorableDistance(dir models.Direction, pivotPrice, price float64) float64 {
	d := (price - pivotPrice) / pivotPrice * 100
	if dir == models.Short {
		d = -d
	}
	return d
}

func strengthOf(favorablePct float64) models.Strength {
	switch {
	case favorablePct > 1.0:
		return models.StrengthStrong
	case favorablePct >= 0.5:
		return models.StrengthModerate
	default:
		return models.StrengthBuilding
	}
}

func (e *Engine) rangeFor(symbol string) *tickRange {
	r, ok := e.ranges[symbol]
	if !ok {
		r = newTickRange(e.cfg.RangeLookback)
		e.ranges[symbol] = r
	}
	return r
}

type noopMetrics struct{}

func (noopMetrics) RecordTick(string)             {}
func (noopMetrics) RecordNotification(string)     {}
func (noopMetrics) RecordError(string)            {}
func (noopMetrics) RecordLastPrice(string, float64) {}
func (noopMetrics) RecordLatency(string, float64) {}
