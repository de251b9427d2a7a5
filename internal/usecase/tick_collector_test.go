package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/engine"
)

type scriptedStream struct {
	mu           sync.Mutex
	reads        int
	reconnects   int
	reconnectErr error
	connected    bool
	tk           chan *models.Tick
	er           chan error
}

func (s *scriptedStream) Connect(context.Context) error   { s.connected = true; return nil }
func (s *scriptedStream) Subscribe(context.Context) error { return nil }
func (s *scriptedStream) Close() error                    { s.connected = false; return nil }
func (s *scriptedStream) IsConnected() bool               { return s.connected }

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return s.reconnectErr
}

func (s *scriptedStream) Read(context.Context) (<-chan *models.Tick, <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	s.tk = make(chan *models.Tick, 8)
	s.er = make(chan error, 1)
	return s.tk, s.er
}

func (s *scriptedStream) counts() (reads, reconnects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.reconnects
}

func (s *scriptedStream) channels() (chan *models.Tick, chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tk, s.er
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newCollectorFixture(t *testing.T, stream *scriptedStream) (*TickCollector, *engine.Engine) {
	t.Helper()
	log := testLogger(t)
	eng := engine.New(engine.DefaultConfig(), &captureSink{}, log)
	proc := NewTickProcessor(eng, nil, nopMetrics{})
	return NewTickCollector(stream, proc, nopMetrics{}, nil), eng
}

func TestCollectorResumesReadingAfterStreamFailure(t *testing.T) {
	stream := &scriptedStream{}
	collector, eng := newCollectorFixture(t, stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := collector.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// the read loop dies: one error, then both channels close
	tk, er := stream.channels()
	er <- errors.New("connection reset")
	close(er)
	close(tk)

	waitFor(t, func() bool {
		reads, reconnects := stream.counts()
		return reads == 2 && reconnects == 1
	}, "collector never re-read the reconnected stream")

	// ticks from the new read loop must reach the state machine
	tk2, _ := stream.channels()
	tk2 <- &models.Tick{Symbol: "BTCUSDT", Price: 123, At: time.Now()}

	waitFor(t, func() bool {
		price, _, ok := eng.LastPrice("BTCUSDT")
		return ok && price == 123
	}, "tick from resumed stream never processed")
}

func TestCollectorStopsWhenReconnectFails(t *testing.T) {
	stream := &scriptedStream{reconnectErr: errors.New("exchange down")}
	collector, _ := newCollectorFixture(t, stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := collector.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	tk, er := stream.channels()
	close(er)
	close(tk)

	waitFor(t, func() bool {
		_, reconnects := stream.counts()
		return reconnects == 1
	}, "collector never attempted a reconnect")

	// the consume loop must give up, not spin on the closed channels
	time.Sleep(50 * time.Millisecond)
	reads, reconnects := stream.counts()
	if reads != 1 || reconnects != 1 {
		t.Fatalf("reads=%d reconnects=%d after failed reconnect, want 1/1", reads, reconnects)
	}
}
