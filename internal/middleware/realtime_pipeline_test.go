package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"PriceWorm/internal/domain/models"
)

type recordingProc struct {
	mu    sync.Mutex
	ticks []*models.Tick
	err   error
}

func (p *recordingProc) Process(_ context.Context, t *models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ticks = append(p.ticks, t)
	return nil
}

func (p *recordingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ticks)
}

type countMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *countMetrics) RecordTick(string)               {}
func (m *countMetrics) RecordNotification(string)       {}
func (m *countMetrics) RecordLastPrice(string, float64) {}
func (m *countMetrics) RecordLatency(string, float64)   {}

func (m *countMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	m.errors[kind]++
}

func (m *countMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func validTick(price float64) *models.Tick {
	return &models.Tick{Symbol: "BTCUSDT", Price: price, At: time.Now()}
}

func TestPipelineForwardsValidTicks(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, &countMetrics{})

	if err := p.Process(context.Background(), validTick(100)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("forwarded = %d, want 1", proc.count())
	}
}

func TestPipelineRejectsInvalidTicks(t *testing.T) {
	proc := &recordingProc{}
	m := &countMetrics{}
	p := NewRealtimePipeline(proc, m)

	cases := []*models.Tick{
		nil,
		{Symbol: "", Price: 100, At: time.Now()},
		{Symbol: "BTCUSDT", Price: 0, At: time.Now()},
		{Symbol: "BTCUSDT", Price: -1, At: time.Now()},
		{Symbol: "BTCUSDT", Price: 100},
	}
	for i, tk := range cases {
		if err := p.Process(context.Background(), tk); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid ticks reached downstream: %d", proc.count())
	}
	if m.errorCount("pipeline_validate") != len(cases) {
		t.Fatalf("validate errors = %d, want %d", m.errorCount("pipeline_validate"), len(cases))
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	proc := &recordingProc{}
	m := &countMetrics{}
	p := NewRealtimePipeline(proc, m, WithMaxRPS(1))

	// second tick in the same second is dropped without error
	if err := p.Process(context.Background(), validTick(100)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := p.Process(context.Background(), validTick(101)); err != nil {
		t.Fatalf("throttled tick should not error: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("forwarded = %d, want 1", proc.count())
	}
	if m.errorCount("pipeline_throttle") != 1 {
		t.Fatalf("throttle drops = %d, want 1", m.errorCount("pipeline_throttle"))
	}

	// a different symbol has its own budget
	other := &models.Tick{Symbol: "ETHUSDT", Price: 3000, At: time.Now()}
	if err := p.Process(context.Background(), other); err != nil {
		t.Fatalf("other symbol: %v", err)
	}
	if proc.count() != 2 {
		t.Fatalf("forwarded = %d, want 2", proc.count())
	}
}

func TestPipelineBuffersOnDownstreamFailure(t *testing.T) {
	proc := &recordingProc{err: fmt.Errorf("broker down")}
	m := &countMetrics{}
	p := NewRealtimePipeline(proc, m, WithBufferSize(4))

	if err := p.Process(context.Background(), validTick(100)); err == nil {
		t.Fatal("expected downstream error")
	}
	if m.errorCount("pipeline_process") != 1 {
		t.Fatalf("process errors = %d, want 1", m.errorCount("pipeline_process"))
	}

	// downstream recovers; the background flush drains the buffer
	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("buffered tick never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
