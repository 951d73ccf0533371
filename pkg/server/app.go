package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StockPulse/internal/registry"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/cache"
	pkgch "StockPulse/pkg/clickhouse"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/queue"
)

// App encapsulates the entire application lifecycle: the feed
// collector, the HTTP server, the optional Kafka ingest consumer and
// the history refresh queue.
type App struct {
	cfg          *config.Config
	logger       *applogger.Logger
	collector    *usecase.UpdateCollector
	processor    *usecase.UpdateProcessor
	consumer     *pkgkafka.Consumer
	kh           *usecase.KafkaUpdatesHandler
	chClient     *pkgch.Client
	refreshQueue *queue.RedisQueue
	cacheSvc     cache.Service
	registry     *registry.Registry
	handler      xhttp.Handler
	httpServer   *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.UpdateCollector,
	processor *usecase.UpdateProcessor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaUpdatesHandler,
	chClient *pkgch.Client,
	refreshQueue *queue.RedisQueue,
	cacheSvc cache.Service,
	reg *registry.Registry,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:          cfg,
		logger:       l,
		collector:    collector,
		processor:    processor,
		consumer:     consumer,
		kh:           kh,
		chClient:     chClient,
		refreshQueue: refreshQueue,
		cacheSvc:     cacheSvc,
		registry:     reg,
		handler:      handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Feed collector
	if err := a.collector.Start(ctx); err != nil {
		a.logger.Error("collector start failed", applogger.Error(err))
		return err
	}
	a.logger.Info("collector started",
		applogger.Strings("symbols", a.cfg.Feed.Symbols),
		applogger.String("backend", a.cfg.Backend.Type))

	// Kafka ingest consumer
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// History refresh queue
	if a.refreshQueue != nil {
		if err := a.refreshQueue.Start(); err != nil {
			a.logger.Error("refresh queue start failed", applogger.Error(err))
			return err
		}
		go a.scheduleRefreshes(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start failed", applogger.Error(err))
		return err
	}
	a.logger.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// scheduleRefreshes enqueues a history refresh for every watched symbol
// at half the cache TTL, so series roll over before they expire.
func (a *App) scheduleRefreshes(ctx context.Context) {
	interval := a.cfg.Cache.HistoryTTL / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Warm the cache for pinned symbols right away.
	a.enqueueRefreshes(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.enqueueRefreshes(ctx)
		}
	}
}

func (a *App) enqueueRefreshes(ctx context.Context) {
	for _, symbol := range a.registry.Symbols() {
		err := a.refreshQueue.Enqueue(ctx, usecase.RefreshMessageType, usecase.RefreshPayload{
			Symbol:   symbol,
			Period:   a.cfg.Feed.Period,
			Interval: a.cfg.Feed.Interval,
		})
		if err != nil {
			a.logger.Warn("refresh enqueue failed",
				applogger.String("symbol", symbol),
				applogger.Error(err))
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.collector.Shutdown(ctx); err != nil {
		a.logger.Warn("collector stop error", applogger.Error(err))
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.refreshQueue != nil {
		if err := a.refreshQueue.Stop(ctx); err != nil {
			a.logger.Warn("refresh queue stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	// Closes the publisher and storage handles.
	if a.processor != nil {
		a.processor.Close()
	}

	if a.cacheSvc != nil {
		if err := a.cacheSvc.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
