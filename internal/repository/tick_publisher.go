package repository

import (
	"context"

	"PriceWorm/internal/domain/models"
	domrepo "PriceWorm/internal/domain/repository"
	pkgkafka "PriceWorm/pkg/kafka"
)

// KafkaTickPublisher forwards live ticks to a broker topic, keyed by
// symbol so per-symbol ordering is preserved within a partition.
type KafkaTickPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTickPublisher creates a Kafka tick publisher.
func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) domrepo.TickPublisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func (p *KafkaTickPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), map[string]interface{}{
		"symbol": t.Symbol,
		"p":      t.Price,
		"t":      t.At.UnixMilli(),
	})
}

func (p *KafkaTickPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
