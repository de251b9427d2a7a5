package notify

import (
	"context"

	"PriceWorm/internal/domain/models"
	drepo "PriceWorm/internal/domain/repository"
	"PriceWorm/pkg/logger"
	"PriceWorm/pkg/queue"
)

// LoggerSink writes notification intents to the structured log. Always
// present, so every intent is observable even with no delivery backend.
type LoggerSink struct {
	logger *logger.Logger
}

func NewLoggerSink(log *logger.Logger) *LoggerSink {
	return &LoggerSink{logger: log}
}

func (s *LoggerSink) Emit(_ context.Context, n models.Notification) error {
	s.logger.Info("notification",
		logger.String("kind", string(n.Kind)),
		logger.String("symbol", n.Symbol),
		logger.String("boundary", n.Boundary),
		logger.String("direction", string(n.Direction)),
		logger.Any("price", n.Price),
		logger.Any("pivot_price", n.PivotPrice))
	return nil
}

// QueueSink hands intents to the Redis delivery queue, where the
// delivery process formats and sends them. The core never formats
// human-readable text.
type QueueSink struct {
	queue queue.QueueService
}

// MessageType is the queue message type for notification intents.
const MessageType = "notification"

func NewQueueSink(q queue.QueueService) *QueueSink {
	return &QueueSink{queue: q}
}

func (s *QueueSink) Emit(ctx context.Context, n models.Notification) error {
	return s.queue.PublishMessage(ctx, MessageType, n)
}

// Fanout forwards each intent to every configured sink. A failing sink
// does not stop the others; the first error is returned.
type Fanout struct {
	sinks []drepo.NotificationSink
}

func NewFanout(sinks ...drepo.NotificationSink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Emit(ctx context.Context, n models.Notification) error {
	var first error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
