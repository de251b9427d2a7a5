//go:build wireinject
// +build wireinject

package di

import (
	"PriceWorm/pkg/config"
	"PriceWorm/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
    wire.Build(
        // Ambient
        ProvideLogger,
        ProvideMetrics,

        // Boundary schedule
        ProvideCalculators,

        // Infrastructure clients
        ProvideRedisClient,
        ProvideClickHouseClient,
        ProvideKafkaProducer,
        ProvideKafkaConsumer,
        ProvideHTTPClient,
        ProvideRateLimiter,
        ProvideCandleCache,

        // Repositories and sinks
        ProvideNotificationSink,
        ProvideCandleArchive,
        ProvideTickPublisher,
        ProvideMarketData,
        ProvideMarketStream,

        // Core strategy
        ProvideEngine,
        ProvideAlertScheduler,

        // Use cases
        ProvideTickProcessor,
        ProvideTickCollector,
        ProvideKafkaTicksHandler,
        ProvideMonitor,
        ProvideCandlesUseCase,

        // HTTP surface
        ProvideHTTPHandler,

        // Application server
        ProvideApp,
    )
    return &server.App{}, nil
}
