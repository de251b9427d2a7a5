package usecase

import (
	"context"

	"PriceWorm/internal/domain/models"
	drepo "PriceWorm/internal/domain/repository"
	mid "PriceWorm/internal/middleware"
)

// TickCollector collects ticks from the market stream and feeds them
// through the realtime pipeline.
type TickCollector struct {
	stream  drepo.MarketStream
	proc    *TickProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewTickCollector creates a new TickCollector instance.
func NewTickCollector(stream drepo.MarketStream, proc *TickProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *TickCollector {
	return &TickCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tkCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tkCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tkCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, open := <-errCh:
			if !open {
				// the read loop exited and closed its channels
				if tkCh, errCh = c.resume(ctx); tkCh == nil {
					return
				}
				continue
			}
			if err != nil {
				// the poll fallback covers the gap until resume
				c.metrics.RecordError("stream")
			}
		case t, open := <-tkCh:
			if !open {
				if tkCh, errCh = c.resume(ctx); tkCh == nil {
					return
				}
				continue
			}
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
		}
	}
}

// resume re-establishes the socket and starts a fresh read loop after
// the previous one terminated. Returns nil channels when the stream
// cannot be recovered; prices are then served by the poll fallback
// alone.
func (c *TickCollector) resume(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	if ctx.Err() != nil {
		return nil, nil
	}
	if err := c.stream.Reconnect(ctx); err != nil {
		c.metrics.RecordError("stream_reconnect")
		return nil, nil
	}
	return c.stream.Read(ctx)
}

// Processor returns the underlying TickProcessor for lifecycle management.
func (c *TickCollector) Processor() *TickProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
