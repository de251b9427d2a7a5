package usecase

import (
	"context"
	"encoding/json"
	"time"

	domrepo "PriceWorm/internal/domain/repository"
	"PriceWorm/internal/engine"
	pkgkafka "PriceWorm/pkg/kafka"
)

// KafkaTicksHandler consumes tick messages from the broker and replays
// them into the state machine. Lets a headless instance run off the
// topic instead of holding its own exchange connection.
type KafkaTicksHandler struct {
	topic   string
	engine  *engine.Engine
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, eng *engine.Engine, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, engine: eng, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, p, t}
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		P      float64 `json:"p"`
		T      int64   `json:"t"` // ms
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.Symbol == "" || m.P <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return nil
	}

	at := time.UnixMilli(m.T).UTC()
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(at).Seconds())

	h.engine.OnPrice(ctx, m.Symbol, m.P, at)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
