package usecase

import (
	"context"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/hub"
	mid "StockPulse/internal/middleware"
	"StockPulse/pkg/logger"
)

// UpdateCollector drains the feed stream, fans updates out to websocket
// subscribers through the hub, and pushes them into the durable
// pipeline.
type UpdateCollector struct {
	logger  *logger.Logger
	stream  drepo.FeedStream
	proc    *UpdateProcessor
	pipe    *mid.UpdatePipeline
	hub     *hub.Hub
	metrics drepo.Metrics
}

// NewUpdateCollector creates an UpdateCollector.
func NewUpdateCollector(lgr *logger.Logger, stream drepo.FeedStream, proc *UpdateProcessor, pipe *mid.UpdatePipeline, h *hub.Hub, metrics drepo.Metrics) *UpdateCollector {
	return &UpdateCollector{
		logger:  lgr,
		stream:  stream,
		proc:    proc,
		pipe:    pipe,
		hub:     h,
		metrics: metrics,
	}
}

// State exposes the feed connection snapshot for the status endpoint.
func (c *UpdateCollector) State() models.ConnectionState {
	return c.stream.State()
}

// Start connects the stream and begins consuming.
func (c *UpdateCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	upCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, upCh, errCh)
	return nil
}

func (c *UpdateCollector) consume(ctx context.Context, upCh <-chan *models.PriceUpdate, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				c.logger.Warn("feed stream error, reconnecting", logger.Error(err))
				if rerr := c.stream.Reconnect(ctx); rerr != nil {
					c.logger.Error("feed reconnect failed", logger.Error(rerr))
					return
				}
				upCh, errCh = c.stream.Read(ctx)
			}
		case u, ok := <-upCh:
			if !ok {
				// Stream closed; a reconnect reopens the channels via
				// the error path, so a clean close means we are done.
				return
			}
			if u == nil {
				continue
			}
			c.hub.Publish(u)
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, u)
			} else {
				_ = c.proc.Process(ctx, u)
			}
			c.metrics.RecordLastPrice(u.Symbol, u.Price)
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *UpdateCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
