//go:build wireinject
// +build wireinject

package di

import (
	"StockPulse/pkg/config"
	"StockPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideMetrics,
		ProvideLogger,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCacheService,

		// Feed core
		ProvideRegistry,
		ProvideHub,
		ProvideGateway,
		ProvideHistorySource,
		ProvideHistoryProvider,
		ProvideFeedStream,

		// Repositories
		ProvideStorage,
		ProvidePublisher,

		// Use cases
		ProvideUpdateProcessor,
		ProvideUpdateCollector,
		ProvideKafkaUpdatesHandler,
		ProvideRefreshQueue,

		// HTTP
		ProvideFeedHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
