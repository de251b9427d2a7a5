package di

import (
    "context"
    "fmt"
    "net"
    "strconv"
    "time"

    "PriceWorm/internal/alert"
    "PriceWorm/internal/boundary"
    "PriceWorm/internal/candles"
    "PriceWorm/internal/domain/models"
    "PriceWorm/internal/domain/repository"
    "PriceWorm/internal/engine"
    "PriceWorm/internal/handler/api"
    mid "PriceWorm/internal/middleware"
    "PriceWorm/internal/notify"
    internalrepo "PriceWorm/internal/repository"
    "PriceWorm/internal/service/binance"
    "PriceWorm/internal/service/ratelimit"
    "PriceWorm/internal/usecase"
    "PriceWorm/pkg/cache"
    pkgch "PriceWorm/pkg/clickhouse"
    "PriceWorm/pkg/config"
    xhttp "PriceWorm/pkg/http"
    pkgkafka "PriceWorm/pkg/kafka"
    "PriceWorm/pkg/logger"
    "PriceWorm/pkg/metrics"
    "PriceWorm/pkg/queue"
    "PriceWorm/pkg/server"

    "github.com/redis/go-redis/v9"
)

// Calculators bundles the three boundary sets the strategy tracks.
// Wormholes and sessions run in the strategy timezone; quarters are UTC.
type Calculators struct {
	Wormholes *boundary.Calculator
	Sessions  *boundary.Calculator
	Quarters  *boundary.Calculator
}

// MarketData bundles the candle source chain and the quote fallback.
type MarketData struct {
	Source repository.CandleSource
	Quoter repository.Quoter
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCalculators builds the boundary calculators from configuration.
func ProvideCalculators(cfg *config.Config) (Calculators, error) {
	loc, err := time.LoadLocation(cfg.Strategy.Timezone)
	if err != nil {
		return Calculators{}, fmt.Errorf("load timezone: %w", err)
	}
	return Calculators{
		Wormholes: boundary.New(toAnchors(cfg.Strategy.Wormholes), loc),
		Sessions:  boundary.New(toAnchors(cfg.Strategy.Sessions), loc),
		Quarters:  boundary.New(toAnchors(cfg.Strategy.Quarters), time.UTC),
	}, nil
}

func toAnchors(in []config.Anchor) []models.Anchor {
	out := make([]models.Anchor, 0, len(in))
	for _, a := range in {
		out = append(out, models.Anchor{Name: a.Name, Hour: a.Hour, Minute: a.Minute})
	}
	return out
}

// ProvideRedisClient creates a Redis client, or nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideNotificationSink fans intents out to the structured log and,
// when Redis is enabled, the delivery queue.
func ProvideNotificationSink(cfg *config.Config, lgr *logger.Logger, client *redis.Client) repository.NotificationSink {
	sinks := []repository.NotificationSink{notify.NewLoggerSink(lgr)}
	if client != nil {
		rq := queue.NewRedisQueue(lgr, &queue.QueueConfig{Workers: 1}, client,
			queue.ModeProducerOnly,
			queue.WithKeyPrefix(cfg.Redis.QueueKey),
		)
		sinks = append(sinks, notify.NewQueueSink(rq))

		// aggregate repeated error logs onto the same queue
		lgr.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "error_logs",
			Publisher:      rq,
		})
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return notify.NewFanout(sinks...)
}

// ProvideEngine creates the pivot/setup state machine.
func ProvideEngine(cfg *config.Config, sink repository.NotificationSink, m repository.Metrics, lgr *logger.Logger) *engine.Engine {
	return engine.New(engine.Config{
		DivergencePct:  cfg.Strategy.DivergencePct,
		BreakoutPct:    cfg.Strategy.BreakoutPct,
		RetestPct:      cfg.Strategy.RetestPct,
		ProximityPct:   cfg.Strategy.ProximityPct,
		RangeLookback:  cfg.Strategy.RangeLookback,
		MinRangePoints: cfg.Strategy.MinRangePoints,
		SetupHorizon:   cfg.Strategy.SetupHorizon,
		Retention:      cfg.Strategy.Retention,
	}, sink, lgr, engine.WithMetrics(m))
}

// ProvideAlertScheduler creates the offset alert scheduler keyed to the
// trading session boundaries.
func ProvideAlertScheduler(cfg *config.Config, calcs Calculators, lgr *logger.Logger) (*alert.Scheduler, error) {
	return alert.New(calcs.Sessions, cfg.Alerts.Offsets, lgr,
		alert.WithRetention(cfg.Strategy.Retention),
	)
}

// ProvideHTTPClient creates the shared REST client.
func ProvideHTTPClient() *xhttp.Client {
	return xhttp.NewClient()
}

// ProvideRateLimiter creates the shared token-bucket limiter for
// outbound exchange REST calls.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideCandleCache builds the closed-window candle cache: layered
// memory+Redis when Redis is enabled, memory-only otherwise.
func ProvideCandleCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}

	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc), nil
}

// ProvideMarketData assembles the candle source chain: throttled Binance
// primary, optional Kraken fallback, closed-window caching on top.
func ProvideMarketData(cfg *config.Config, client *xhttp.Client, limiter *ratelimit.Limiter, c cache.Service, lgr *logger.Logger) MarketData {
	primary := candles.NewThrottledSource(
		candles.NewBinanceSource(client, lgr, candles.WithBinanceBaseURL(cfg.Binance.RestURL)),
		limiter, "binance", 10, 2,
	)

	var src repository.CandleSource = primary
	if cfg.Kraken.Enabled {
		secondary := candles.NewKrakenSource(client, lgr, candles.WithKrakenBaseURL(cfg.Kraken.RestURL))
		src = candles.NewFallbackSource(primary, secondary, lgr)
	}

	return MarketData{
		Source: candles.NewCachedSource(src, c, cfg.Redis.CacheTTL, lgr),
		Quoter: primary,
	}
}

// ProvideClickHouseClient creates the ClickHouse client and initializes
// the candle archive schema. Returns nil when the archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.ArchiveSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCandleArchive creates the ClickHouse-backed archive, or nil
// when no storage backend is enabled.
func ProvideCandleArchive(chClient *pkgch.Client) repository.CandleArchive {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseArchive(chClient.DB())
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
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

// ProvideTickPublisher creates the broker tick publisher, or nil when
// no broker is configured.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.TickPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}

	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaTicksHandler registers the replay handler for the tick topic.
func ProvideKafkaTicksHandler(eng *engine.Engine, m repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topic, eng, m)
}

// ProvideMarketStream creates the Binance trade stream.
func ProvideMarketStream(cfg *config.Config, lgr *logger.Logger) repository.MarketStream {
	pairs := make([]string, 0, len(cfg.Strategy.Symbols))
	for _, s := range cfg.Strategy.Symbols {
		pairs = append(pairs, candles.NormalizeBinance(s))
	}
	return binance.New(
		cfg.Binance.WebSocketURL,
		pairs,
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
		lgr,
	)
}

// ProvideTickProcessor creates the tick processing use case.
func ProvideTickProcessor(eng *engine.Engine, pub repository.TickPublisher, m repository.Metrics) *usecase.TickProcessor {
	return usecase.NewTickProcessor(eng, pub, m)
}

// ProvideTickCollector creates the collector with its realtime pipeline.
func ProvideTickCollector(stream repository.MarketStream, proc *usecase.TickProcessor, m repository.Metrics) *usecase.TickCollector {
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(20),
		mid.WithBufferSize(1000),
	)
	return usecase.NewTickCollector(stream, proc, m, pipe)
}

// ProvideMonitor creates the scheduler loop.
func ProvideMonitor(
	cfg *config.Config,
	calcs Calculators,
	eng *engine.Engine,
	sched *alert.Scheduler,
	md MarketData,
	archive repository.CandleArchive,
	sink repository.NotificationSink,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.Monitor {
	return usecase.NewMonitor(
		usecase.MonitorConfig{
			Symbols:      cfg.Strategy.Symbols,
			Recipients:   cfg.Alerts.Recipients,
			Lookback:     cfg.Strategy.Lookback,
			TickInterval: cfg.Strategy.TickInterval,
			PollInterval: cfg.Strategy.PollInterval,
			FetchTimeout: cfg.Strategy.FetchTimeout,
		},
		calcs.Wormholes,
		calcs.Quarters,
		eng,
		sched,
		md.Source,
		md.Quoter,
		archive,
		sink,
		m,
		lgr,
	)
}

// ProvideCandlesUseCase creates the archived-candle query use case.
func ProvideCandlesUseCase(archive repository.CandleArchive) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(archive)
}

// ProvideHTTPHandler creates the strategy API handler.
func ProvideHTTPHandler(
	lgr *logger.Logger,
	monitor *usecase.Monitor,
	eng *engine.Engine,
	collector *usecase.TickCollector,
	candlesUC *usecase.CandlesUseCase,
) xhttp.Handler {
	return api.NewStrategyEchoHandler(lgr, monitor, eng, collector, candlesUC)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	collector *usecase.TickCollector,
	monitor *usecase.Monitor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, lgr, collector, monitor, consumer, kh, chClient, handler)
}
