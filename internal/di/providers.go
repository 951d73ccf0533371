package di

import (
	"context"
	"fmt"
	"time"

	"StockPulse/internal/domain/repository"
	"StockPulse/internal/handler/api"
	"StockPulse/internal/hub"
	mid "StockPulse/internal/middleware"
	"StockPulse/internal/registry"
	internalrepo "StockPulse/internal/repository"
	"StockPulse/internal/service/simulator"
	"StockPulse/internal/service/upstream"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/cache"
	pkgch "StockPulse/pkg/clickhouse"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	"StockPulse/pkg/logger"
	"StockPulse/pkg/metrics"
	"StockPulse/pkg/queue"
	"StockPulse/pkg/server"
)

// ProvideLogger creates the application logger. When the backend is
// Kafka, error logs are additionally aggregated and shipped to the log
// topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if producer != nil && cfg.Kafka.LogTopic != "" {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRegistry creates the subscription registry with the configured
// symbols pinned.
func ProvideRegistry(cfg *config.Config, l *logger.Logger) *registry.Registry {
	reg := registry.New(l)
	reg.Pin(cfg.Feed.Symbols...)
	return reg
}

// ProvideHub creates the update fan-out hub.
func ProvideHub(l *logger.Logger, m repository.Metrics) *hub.Hub {
	return hub.New(l, m, hub.WithBuffer(64))
}

// ProvideGateway creates the websocket gateway.
func ProvideGateway(l *logger.Logger, reg *registry.Registry, h *hub.Hub) *hub.Gateway {
	return hub.NewGateway(l, reg, h)
}

// ProvideClickHouseClient creates a ClickHouse client when the durable
// backend needs one; nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !needsClickHouse(cfg) {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	table := cfg.ClickHouse.Table
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (ts DateTime, symbol String, price Float64, change Float64, change_percent Float64, fallback UInt8) ENGINE=MergeTree ORDER BY (symbol, ts)", db, table),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer for the kafka backend;
// nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the ingest consumer when enabled; nil
// otherwise.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}

	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisCache connects to Redis, or returns nil when no host is
// configured so the service can run on the in-memory cache alone.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Redis.Host == "" {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCacheService layers memory over Redis when Redis is available.
func ProvideCacheService(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
}

// ProvideHistorySource creates the upstream REST client.
func ProvideHistorySource(cfg *config.Config) repository.HistorySource {
	return upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout)
}

// ProvideHistoryProvider creates the cache-aside history service.
func ProvideHistoryProvider(l *logger.Logger, source repository.HistorySource, c cache.Service, m repository.Metrics, cfg *config.Config) repository.HistoryProvider {
	return usecase.NewHistoryService(l, source, c, m, cfg.Cache.HistoryTTL)
}

// ProvideFeedStream creates the price simulator.
func ProvideFeedStream(l *logger.Logger, history repository.HistoryProvider, reg *registry.Registry, m repository.Metrics, cfg *config.Config) repository.FeedStream {
	return simulator.New(l, history, reg, m,
		simulator.WithTickInterval(cfg.Feed.TickInterval),
		simulator.WithJitter(cfg.Feed.Jitter),
		simulator.WithDelays(cfg.Feed.ConnectDelay, cfg.Feed.ReconnectDelay),
		simulator.WithStagger(cfg.Feed.Stagger),
		simulator.WithSeries(cfg.Feed.Period, cfg.Feed.Interval),
		simulator.WithBuffer(cfg.Feed.BufferSize),
	)
}

// ProvideStorage creates ClickHouse storage when a client exists.
func ProvideStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
}

// ProvidePublisher creates the Kafka publisher when a producer exists.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideUpdateProcessor creates the backend router.
func ProvideUpdateProcessor(pub repository.Publisher, store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.UpdateProcessor {
	return usecase.NewUpdateProcessor(pub, store, m, cfg.Backend.Type)
}

// ProvideUpdateCollector creates the collector with its durable
// pipeline in front of the processor.
func ProvideUpdateCollector(l *logger.Logger, stream repository.FeedStream, processor *usecase.UpdateProcessor, h *hub.Hub, m repository.Metrics, cfg *config.Config) *usecase.UpdateCollector {
	var pipe *mid.UpdatePipeline
	if cfg.Backend.Type != "none" {
		pipe = mid.NewUpdatePipeline(processor, m,
			mid.WithMaxRPS(cfg.Feed.MaxRPS),
			mid.WithBufferSize(cfg.Feed.BufferSize),
		)
	}
	return usecase.NewUpdateCollector(l, stream, processor, pipe, h, m)
}

// ProvideKafkaUpdatesHandler registers the ingest handler for the
// updates topic.
func ProvideKafkaUpdatesHandler(store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaUpdatesHandler {
	if store == nil {
		return nil
	}
	return usecase.NewKafkaUpdatesHandler(cfg.Kafka.Topic, store, m)
}

// ProvideRefreshQueue creates the Redis-backed history refresh queue,
// sharing the cache connection; nil without Redis.
func ProvideRefreshQueue(l *logger.Logger, cfg *config.Config, rc *cache.RedisCache, history repository.HistoryProvider) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	return queue.NewRedisConsumer(l,
		&queue.QueueConfig{
			Workers:    cfg.Queue.Workers,
			RetryLimit: cfg.Queue.RetryLimit,
			RetryDelay: cfg.Queue.RetryDelay,
		},
		rc.Client(),
		[]queue.Job{usecase.NewRefreshHistoryJob(history)},
	)
}

// ProvideFeedHandler creates the HTTP handler.
func ProvideFeedHandler(
	l *logger.Logger,
	history repository.HistoryProvider,
	collector *usecase.UpdateCollector,
	store repository.Storage,
	reg *registry.Registry,
	h *hub.Hub,
	gateway *hub.Gateway,
) xhttp.Handler {
	return api.NewFeedHandler(l, history, collector, store, reg, h, gateway)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	collector *usecase.UpdateCollector,
	processor *usecase.UpdateProcessor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaUpdatesHandler,
	chClient *pkgch.Client,
	refreshQueue *queue.RedisQueue,
	cacheSvc cache.Service,
	reg *registry.Registry,
	handler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, l, collector, processor, consumer, kh, chClient, refreshQueue, cacheSvc, reg, handler)
}

func needsClickHouse(cfg *config.Config) bool {
	if cfg.Backend.Type == "clickhouse" {
		return true
	}
	return cfg.Backend.Type == "kafka" && cfg.Kafka.Consumer.Enabled
}
