package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"PriceWorm/internal/alert"
	"PriceWorm/internal/boundary"
	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/domain/repository"
	"PriceWorm/internal/engine"
	"PriceWorm/pkg/logger"
)

type stubSource struct {
	candles []models.Candle
	err     error
	calls   int
}

func (s *stubSource) Fetch(_ context.Context, _ string, _, _ time.Time) ([]models.Candle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.candles, nil
}

type stubQuoter struct {
	price float64
	err   error
	calls int
}

func (s *stubQuoter) Quote(_ context.Context, _ string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.price, nil
}

type stubArchive struct {
	stored []models.Candle
}

func (a *stubArchive) StoreBatch(_ context.Context, _ string, candles []models.Candle) error {
	a.stored = append(a.stored, candles...)
	return nil
}

func (a *stubArchive) Query(_ context.Context, _ string, _, _ time.Time, _ repository.Timeframe) ([]models.Candle, error) {
	return nil, nil
}

func (a *stubArchive) Health(_ context.Context) error { return nil }
func (a *stubArchive) Close() error                   { return nil }

type captureSink struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (s *captureSink) Emit(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	return nil
}

func (s *captureSink) byKind(kind models.NotificationKind) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) RecordTick(string)                 {}
func (nopMetrics) RecordNotification(string)         {}
func (nopMetrics) RecordError(string)                {}
func (nopMetrics) RecordLastPrice(string, float64)   {}
func (nopMetrics) RecordLatency(string, float64)     {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

var boundaryAnchors = []models.Anchor{
	{Name: "midnight", Hour: 0, Minute: 46},
	{Name: "premarket", Hour: 6, Minute: 43},
	{Name: "midday", Hour: 11, Minute: 57},
	{Name: "afterhours", Hour: 17, Minute: 32},
}

var quarterAnchors = []models.Anchor{
	{Name: "q1", Hour: 4, Minute: 43},
	{Name: "q2", Hour: 10, Minute: 43},
	{Name: "q3", Hour: 16, Minute: 43},
	{Name: "q4", Hour: 22, Minute: 43},
}

var sessionAnchors = []models.Anchor{
	{Name: "asia", Hour: 20, Minute: 0},
	{Name: "london", Hour: 2, Minute: 0},
	{Name: "ny_am", Hour: 9, Minute: 30},
}

type monitorFixture struct {
	monitor *Monitor
	engine  *engine.Engine
	source  *stubSource
	quoter  *stubQuoter
	archive *stubArchive
	sink    *captureSink
}

func newMonitorFixture(t *testing.T, source *stubSource, quoter *stubQuoter, archive repository.CandleArchive) *monitorFixture {
	t.Helper()

	log := testLogger(t)
	sink := &captureSink{}
	eng := engine.New(engine.DefaultConfig(), sink, log)

	sessions := boundary.New(sessionAnchors, time.UTC)
	sched, err := alert.New(sessions, []int{1, 5, 15, 30}, log)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	m := NewMonitor(
		MonitorConfig{
			Symbols:      []string{"BTCUSDT"},
			Recipients:   []string{"ops"},
			Lookback:     2,
			TickInterval: time.Minute,
			PollInterval: 5 * time.Minute,
			FetchTimeout: time.Second,
		},
		boundary.New(boundaryAnchors, time.UTC),
		boundary.New(quarterAnchors, time.UTC),
		eng,
		sched,
		source,
		quoter,
		archive,
		sink,
		nopMetrics{},
		log,
	)
	return &monitorFixture{monitor: m, engine: eng, source: source, quoter: quoter, sink: sink}
}

func testCandles() []models.Candle {
	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	return []models.Candle{
		{OpenTime: base, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
		{OpenTime: base.Add(time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101.5, Volume: 20},
	}
}

func TestMonitorTickCapturesPivotAndRefreshesWindows(t *testing.T) {
	source := &stubSource{candles: testCandles()}
	quoter := &stubQuoter{price: 100.5}
	fx := newMonitorFixture(t, source, quoter, nil)

	// 00:50 UTC, four minutes after the midnight boundary
	now := time.Date(2024, 3, 15, 0, 50, 0, 0, time.UTC)
	fx.monitor.tick(context.Background(), now)

	// no cached tick, so the poll fallback must have quoted
	if quoter.calls == 0 {
		t.Fatal("expected poll fallback to call the quoter")
	}
	price, _, ok := fx.engine.LastPrice("BTCUSDT")
	if !ok || price != 100.5 {
		t.Fatalf("LastPrice = %v, %v; want 100.5, true", price, ok)
	}

	captured := fx.sink.byKind(models.KindPivotCaptured)
	if len(captured) != 1 {
		t.Fatalf("pivot captures = %d, want 1", len(captured))
	}
	if captured[0].Boundary != "midnight" || captured[0].Price != 100.5 {
		t.Fatalf("unexpected capture: %+v", captured[0])
	}

	analysis := fx.monitor.Snapshot()
	if !analysis.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", analysis.UpdatedAt, now)
	}
	if analysis.Wormholes.Current.Name != "midnight" {
		t.Fatalf("current boundary = %q, want midnight", analysis.Wormholes.Current.Name)
	}
	if analysis.Quarters.Current.Name != "q4" {
		t.Fatalf("current quarter = %q, want q4", analysis.Quarters.Current.Name)
	}

	reports := analysis.Windows["BTCUSDT"]
	// running window plus two previous
	if len(reports) != 3 {
		t.Fatalf("window reports = %d, want 3", len(reports))
	}
	for i, r := range reports {
		if !r.Available {
			t.Fatalf("report %d unavailable", i)
		}
		if r.Metrics.CandleCount != 2 || r.Metrics.High != 102 {
			t.Fatalf("report %d metrics = %+v", i, r.Metrics)
		}
	}

	qreports := analysis.QuarterWindows["BTCUSDT"]
	if len(qreports) != 3 {
		t.Fatalf("quarter reports = %d, want 3", len(qreports))
	}
	if qreports[0].Window.Start.Name != "q4" {
		t.Fatalf("running quarter window = %q, want q4", qreports[0].Window.Start.Name)
	}
}

func TestMonitorTickSecondRunDoesNotRecapture(t *testing.T) {
	source := &stubSource{candles: testCandles()}
	quoter := &stubQuoter{price: 100.5}
	fx := newMonitorFixture(t, source, quoter, nil)

	now := time.Date(2024, 3, 15, 0, 50, 0, 0, time.UTC)
	fx.monitor.tick(context.Background(), now)
	fx.monitor.tick(context.Background(), now.Add(time.Minute))

	captured := fx.sink.byKind(models.KindPivotCaptured)
	if len(captured) != 1 {
		t.Fatalf("pivot captures = %d, want 1 after two ticks", len(captured))
	}
}

func TestMonitorUnavailableCandlesYieldUnavailableReports(t *testing.T) {
	source := &stubSource{err: fmt.Errorf("fetch: %w", repository.ErrUnavailable)}
	quoter := &stubQuoter{price: 100.5}
	fx := newMonitorFixture(t, source, quoter, nil)

	now := time.Date(2024, 3, 15, 0, 50, 0, 0, time.UTC)
	fx.monitor.tick(context.Background(), now)

	reports := fx.monitor.Snapshot().Windows["BTCUSDT"]
	if len(reports) == 0 {
		t.Fatal("expected reports for configured symbol")
	}
	for i, r := range reports {
		if r.Available {
			t.Fatalf("report %d available despite fetch failure", i)
		}
		if r.Metrics.CandleCount != 0 {
			t.Fatalf("report %d has fabricated metrics: %+v", i, r.Metrics)
		}
	}
}

func TestMonitorQuoterFailureSkipsCapture(t *testing.T) {
	source := &stubSource{candles: testCandles()}
	quoter := &stubQuoter{err: fmt.Errorf("quote: %w", repository.ErrUnavailable)}
	fx := newMonitorFixture(t, source, quoter, nil)

	now := time.Date(2024, 3, 15, 0, 50, 0, 0, time.UTC)
	fx.monitor.tick(context.Background(), now)

	if captured := fx.sink.byKind(models.KindPivotCaptured); len(captured) != 0 {
		t.Fatalf("pivot captured without a live price: %+v", captured)
	}
}

func TestMonitorPollSkipsFreshPrices(t *testing.T) {
	source := &stubSource{candles: testCandles()}
	quoter := &stubQuoter{price: 100.5}
	fx := newMonitorFixture(t, source, quoter, nil)

	now := time.Date(2024, 3, 15, 0, 50, 0, 0, time.UTC)
	fx.engine.OnPrice(context.Background(), "BTCUSDT", 200, now.Add(-time.Minute))

	fx.monitor.tick(context.Background(), now)

	if quoter.calls != 0 {
		t.Fatalf("quoter called %d times despite fresh stream price", quoter.calls)
	}
	if price, _, _ := fx.engine.LastPrice("BTCUSDT"); price != 200 {
		t.Fatalf("stream price overwritten: %v", price)
	}
}

func TestMonitorArchivesFetchedCandles(t *testing.T) {
	source := &stubSource{candles: testCandles()}
	quoter := &stubQuoter{price: 100.5}
	archive := &stubArchive{}
	fx := newMonitorFixture(t, source, quoter, archive)

	now := time.Date(2024, 3, 15, 0, 50, 0, 0, time.UTC)
	fx.monitor.tick(context.Background(), now)

	if len(archive.stored) == 0 {
		t.Fatal("expected fetched candles to reach the archive")
	}
}

func TestMonitorEmitsDueOffsetAlerts(t *testing.T) {
	source := &stubSource{candles: testCandles()}
	quoter := &stubQuoter{price: 100.5}
	fx := newMonitorFixture(t, source, quoter, nil)

	// five minutes before the 06:43 premarket boundary
	now := time.Date(2024, 3, 15, 6, 38, 0, 0, time.UTC)
	fx.monitor.tick(context.Background(), now)

	alerts := fx.sink.byKind(models.KindApproachAlert)
	if len(alerts) != 1 {
		t.Fatalf("approach alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Boundary != "premarket" || a.Phase != models.PhaseBefore || a.OffsetMinutes != 5 || a.Recipient != "ops" {
		t.Fatalf("unexpected alert: %+v", a)
	}

	// same instant again: the one-minute window dedupes
	fx.monitor.tick(context.Background(), now.Add(10*time.Second))
	if alerts := fx.sink.byKind(models.KindApproachAlert); len(alerts) != 1 {
		t.Fatalf("approach alerts after repeat = %d, want 1", len(alerts))
	}
}
