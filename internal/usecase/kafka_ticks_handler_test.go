package usecase

import (
	"context"
	"strconv"
	"testing"
	"time"

	"PriceWorm/internal/engine"
)

func newReplayHandler(t *testing.T) (*KafkaTicksHandler, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.DefaultConfig(), &captureSink{}, testLogger(t))
	return NewKafkaTicksHandler("priceworm.ticks", eng, nopMetrics{}), eng
}

func TestKafkaTicksHandlerReplaysIntoEngine(t *testing.T) {
	h, eng := newReplayHandler(t)

	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	msg := []byte(`{"symbol":"BTCUSDT","p":65000.5,"t":` + strconv.FormatInt(at.UnixMilli(), 10) + `}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	price, gotAt, ok := eng.LastPrice("BTCUSDT")
	if !ok {
		t.Fatal("price not recorded")
	}
	if price != 65000.5 {
		t.Fatalf("price = %v, want 65000.5", price)
	}
	if !gotAt.Equal(at) {
		t.Fatalf("at = %v, want %v", gotAt, at)
	}
}

func TestKafkaTicksHandlerRejectsMalformedMessages(t *testing.T) {
	h, eng := newReplayHandler(t)

	if err := h.Handle(context.Background(), []byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}

	// invalid but parseable messages are dropped without error so the
	// consumer does not retry them
	if err := h.Handle(context.Background(), []byte(`{"symbol":"","p":1,"t":0}`)); err != nil {
		t.Fatalf("empty symbol: %v", err)
	}
	if err := h.Handle(context.Background(), []byte(`{"symbol":"BTCUSDT","p":0,"t":0}`)); err != nil {
		t.Fatalf("zero price: %v", err)
	}

	if _, _, ok := eng.LastPrice("BTCUSDT"); ok {
		t.Fatal("invalid message reached the engine")
	}
}

func TestKafkaTicksHandlerTopic(t *testing.T) {
	h, _ := newReplayHandler(t)
	if h.Topic() != "priceworm.ticks" {
		t.Fatalf("Topic = %q", h.Topic())
	}
}
