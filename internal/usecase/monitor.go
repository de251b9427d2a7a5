package usecase

import (
	"context"
	"sync"
	"time"

	"PriceWorm/internal/alert"
	"PriceWorm/internal/boundary"
	"PriceWorm/internal/domain/models"
	drepo "PriceWorm/internal/domain/repository"
	"PriceWorm/internal/engine"
	"PriceWorm/internal/window"
	"PriceWorm/pkg/logger"
)

// MonitorConfig holds the scheduler-loop settings.
type MonitorConfig struct {
	Symbols      []string
	Recipients   []string
	Lookback     int
	TickInterval time.Duration
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// WindowReport pairs a boundary window with its computed metrics.
// Available is false when no candles could be fetched; metrics are
// never fabricated for an empty window.
type WindowReport struct {
	Window    models.Window       `json:"window"`
	Metrics   models.WindowMetrics `json:"metrics"`
	Available bool                `json:"available"`
}

// Analysis is the snapshot the monitor refreshes on every tick.
type Analysis struct {
	UpdatedAt      time.Time                 `json:"updated_at"`
	Wormholes      models.Schedule           `json:"wormholes"`
	Quarters       models.Schedule           `json:"quarters"`
	Windows        map[string][]WindowReport `json:"windows"`
	QuarterWindows map[string][]WindowReport `json:"quarter_windows"`
}

// Monitor is the low-frequency scheduler loop. Once per tick it
// resolves boundaries, captures pivots, refreshes window metrics,
// evaluates due alerts, runs the poll fallback, and purges expired
// state. A stalled fetch for one symbol never blocks the others.
type Monitor struct {
	cfg       MonitorConfig
	wormholes *boundary.Calculator
	quarters  *boundary.Calculator
	engine    *engine.Engine
	scheduler *alert.Scheduler
	source    drepo.CandleSource
	quoter    drepo.Quoter
	archive   drepo.CandleArchive
	sink      drepo.NotificationSink
	metrics   drepo.Metrics
	logger    *logger.Logger

	mu       sync.RWMutex
	analysis Analysis
}

// NewMonitor creates the scheduler loop. archive may be nil when no
// storage backend is enabled.
func NewMonitor(
	cfg MonitorConfig,
	wormholes *boundary.Calculator,
	quarters *boundary.Calculator,
	eng *engine.Engine,
	sched *alert.Scheduler,
	source drepo.CandleSource,
	quoter drepo.Quoter,
	archive drepo.CandleArchive,
	sink drepo.NotificationSink,
	metrics drepo.Metrics,
	log *logger.Logger,
) *Monitor {
	return &Monitor{
		cfg:       cfg,
		wormholes: wormholes,
		quarters:  quarters,
		engine:    eng,
		scheduler: sched,
		source:    source,
		quoter:    quoter,
		archive:   archive,
		sink:      sink,
		metrics:   metrics,
		logger:    log,
	}
}

// Run blocks until ctx is cancelled, executing one tick per interval.
func (m *Monitor) Run(ctx context.Context) {
	// an immediate first tick so the API has data before the first interval
	m.tick(ctx, time.Now())

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.tick(ctx, now)
		}
	}
}

func (m *Monitor) tick(ctx context.Context, now time.Time) {
	start := time.Now()

	m.pollPrices(ctx, now)

	sched := m.wormholes.Resolve(now, m.cfg.Lookback)
	qsched := m.quarters.Resolve(now, m.cfg.Lookback)

	for _, symbol := range m.cfg.Symbols {
		m.engine.CapturePivot(ctx, symbol, sched.Current, now)
	}

	m.dueAlerts(ctx, now)

	windows := make(map[string][]WindowReport, len(m.cfg.Symbols))
	qwindows := make(map[string][]WindowReport, len(m.cfg.Symbols))
	for _, symbol := range m.cfg.Symbols {
		windows[symbol] = m.refreshWindows(ctx, symbol, sched, now)
		qwindows[symbol] = m.refreshWindows(ctx, symbol, qsched, now)
	}

	m.engine.Purge(now)
	m.scheduler.Purge(now)

	m.mu.Lock()
	m.analysis = Analysis{
		UpdatedAt:      now,
		Wormholes:      sched,
		Quarters:       qsched,
		Windows:        windows,
		QuarterWindows: qwindows,
	}
	m.mu.Unlock()

	m.metrics.RecordLatency("monitor_tick", time.Since(start).Seconds())
}

// pollPrices is the eventual-consistency fallback for a lapsed stream:
// any symbol without a fresh tick gets a REST quote.
func (m *Monitor) pollPrices(ctx context.Context, now time.Time) {
	for _, symbol := range m.cfg.Symbols {
		_, at, ok := m.engine.LastPrice(symbol)
		if ok && now.Sub(at) < m.cfg.PollInterval {
			continue
		}

		qctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
		price, err := m.quoter.Quote(qctx, symbol)
		cancel()
		if err != nil {
			// retried implicitly on the next tick
			m.metrics.RecordError("poll_quote")
			m.logger.Warn("poll fallback failed",
				logger.String("symbol", symbol),
				logger.Error(err))
			continue
		}
		m.engine.OnPrice(ctx, symbol, price, now)
	}
}

// dueAlerts evaluates the offset schedule for every occurrence near now
// and forwards due intents to the sink.
func (m *Monitor) dueAlerts(ctx context.Context, now time.Time) {
	for _, occ := range m.wormholes.Occurrences(now) {
		// before/after offsets are bounded; skip occurrences far away
		gap := now.Sub(occ.At)
		if gap < -time.Hour || gap > 2*time.Hour {
			continue
		}
		for _, recipient := range m.cfg.Recipients {
			for _, n := range m.scheduler.Due(occ, now, recipient) {
				m.metrics.RecordNotification(string(n.Kind))
				if err := m.sink.Emit(ctx, n); err != nil {
					m.metrics.RecordError("notify")
					m.logger.Error("emit alert", logger.Error(err))
				}
			}
		}
	}
}

// refreshWindows fetches candles for the previous windows and the
// running current window, computing metrics per window. Fetch failures
// yield unavailable reports, never zero-filled metrics.
func (m *Monitor) refreshWindows(ctx context.Context, symbol string, sched models.Schedule, now time.Time) []WindowReport {
	spans := make([]models.Window, 0, len(sched.Previous)+1)
	// current window is closed on the right at now
	spans = append(spans, models.Window{
		Start: sched.Current,
		End:   models.Occurrence{Name: "now", At: now},
	})
	spans = append(spans, sched.Previous...)

	reports := make([]WindowReport, 0, len(spans))
	for _, w := range spans {
		report := WindowReport{Window: w}

		fctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
		candles, err := m.source.Fetch(fctx, symbol, w.Start.At, w.End.At)
		cancel()
		if err != nil {
			m.metrics.RecordError("fetch_candles")
			m.logger.Warn("window candles unavailable",
				logger.String("symbol", symbol),
				logger.String("boundary", w.Start.Name),
				logger.Error(err))
			reports = append(reports, report)
			continue
		}

		if m.archive != nil {
			if err := m.archive.StoreBatch(ctx, symbol, candles); err != nil {
				m.metrics.RecordError("archive_store")
				m.logger.Warn("archive store failed",
					logger.String("symbol", symbol),
					logger.Error(err))
			}
		}

		if metrics, ok := window.Compute(candles); ok {
			report.Metrics = metrics
			report.Available = true
		}
		reports = append(reports, report)
	}
	return reports
}

// Snapshot returns the latest analysis for display and API use.
func (m *Monitor) Snapshot() Analysis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.analysis
}
