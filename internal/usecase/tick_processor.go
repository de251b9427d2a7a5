package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceWorm/internal/domain/models"
	drepo "PriceWorm/internal/domain/repository"
	"PriceWorm/internal/engine"
)

// TickProcessor routes validated live ticks into the state machine and,
// when a broker is configured, mirrors them onto the tick topic.
type TickProcessor struct {
	engine  *engine.Engine
	pub     drepo.TickPublisher
	metrics drepo.Metrics
}

// NewTickProcessor creates a new TickProcessor instance. pub may be nil
// when no broker backend is enabled.
func NewTickProcessor(eng *engine.Engine, pub drepo.TickPublisher, metrics drepo.Metrics) *TickProcessor {
	return &TickProcessor{engine: eng, pub: pub, metrics: metrics}
}

// Process handles a single tick.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}

	start := time.Now()
	p.engine.OnPrice(ctx, t.Symbol, t.Price, t.At)

	if p.pub != nil {
		if err := p.pub.Publish(ctx, t); err != nil {
			p.metrics.RecordError("publish")
			return fmt.Errorf("publish tick: %w", err)
		}
	}
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *TickProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
}
