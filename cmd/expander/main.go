package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/history"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/shard"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/expand"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/source"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting query expansion service",
		"port", cfg.Server.Port,
		"num_shards", cfg.Indexer.NumShards,
		"scorer", cfg.Expansion.Scorer,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, os.Stdout)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		metricsServer.Start()
		defer metricsServer.Shutdown(context.Background())
	}

	router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()
	m.ActiveShards.Set(float64(router.NumShards()))
	for shardID, engine := range router.Engines() {
		engine.StartFlushLoop(ctx)
		m.ShardDocCount.WithLabelValues(fmt.Sprint(shardID)).Set(float64(engine.GetTotalDocs()))
	}
	slog.Info("shard router initialized",
		"data_dir", cfg.Indexer.DataDir,
		"documents", router.TotalDocs(),
	)

	kafkaEnabled := len(cfg.Kafka.Brokers) > 0
	indexer := consumer.NewIndexer(router, m)

	var ingestPublisher *publisher.Publisher
	if kafkaEnabled {
		ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer ingestProducer.Close()
		ingestPublisher = publisher.New(ingestProducer, indexer)

		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, indexer.HandleMessage())
		defer kafkaConsumer.Close()
		indexConsumer := consumer.New(kafkaConsumer)
		go func() {
			if err := indexConsumer.Start(ctx); err != nil {
				slog.Error("index consumer error", "error", err)
			}
		}()
		slog.Info("ingesting through kafka",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
		)
	} else {
		ingestPublisher = publisher.New(nil, indexer)
		slog.Warn("kafka not configured, documents are indexed in process")
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Addr != "" {
		err = resilience.Retry(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 3}, func() error {
			var err error
			redisClient, err = pkgredis.NewClient(cfg.Redis)
			return err
		})
		if err != nil {
			slog.Warn("redis unavailable, caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			slog.Info("cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var pgClient *postgres.Client
	var runs *history.Store
	if cfg.Postgres.Host != "" {
		err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() error {
			var err error
			pgClient, err = postgres.New(cfg.Postgres)
			return err
		})
		if err != nil {
			slog.Warn("postgres unavailable, run history disabled", "error", err)
			pgClient = nil
		} else {
			defer pgClient.Close()
			runs = history.NewStore(pgClient.DB)
			if err := runs.Migrate(ctx); err != nil {
				slog.Error("failed to migrate run history schema", "error", err)
				os.Exit(1)
			}
			slog.Info("run history enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
			if last, err := runs.LatestSnapshot(ctx); err != nil {
				slog.Warn("could not read last analytics snapshot", "error", err)
			} else if last != nil {
				slog.Info("last analytics snapshot",
					"expansions", last.TotalExpansions,
					"searches", last.TotalSearches,
				)
			}
		}
	}

	aggregator := analytics.NewAggregator()
	var sink analytics.Sink
	if kafkaEnabled {
		eventProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ExpansionEvents)
		defer eventProducer.Close()
		batch := collector.NewBatchCollector(eventProducer, 100, 5*time.Second)
		batch.Start(ctx)
		defer batch.Close()
		sink = batch
		slog.Info("analytics events published", "topic", cfg.Kafka.Topics.ExpansionEvents)
	}
	tracker := analytics.NewCollector(aggregator, sink)
	if runs != nil {
		runs.StartPeriodicSave(ctx, aggregator, time.Minute)
	}

	src := source.New(router, source.Config{
		Timeout:  cfg.Search.TimeoutPerShard,
		Attempts: cfg.Search.RetrievalAttempts,
		OnStateChange: func(name string, from, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	opts := []expand.Option{expand.WithTracker(tracker), expand.WithMetrics(m)}
	deps := handler.Deps{
		Executor:     executor.New(executor.FromEngines(router.Engines())),
		Tracker:      tracker,
		Metrics:      m,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	}
	if redisClient != nil {
		opts = append(opts, expand.WithCache(cache.New[*expand.Response](redisClient, "expand:", cfg.Redis.CacheTTL)))
		deps.SearchCache = cache.New[*executor.SearchResult](redisClient, "search:", cfg.Redis.CacheTTL)
	}
	if runs != nil {
		opts = append(opts, expand.WithRuns(runs))
		deps.Runs = runs
	}
	deps.Expander = expand.New(src.Sources(), cfg.Expansion, opts...)
	h := handler.New(deps)

	checker := health.NewChecker(cfg.Server.RequestTimeout)
	checker.Register("index", health.IndexCheck(func() health.IndexStats {
		return health.IndexStats{Shards: router.NumShards(), Documents: router.TotalDocs()}
	}, cfg.Expansion.MaxVocabulary))
	var redisPinger, pgPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	if pgClient != nil {
		pgPinger = pgClient
	}
	checker.RegisterOptional("redis", health.PingCheck(redisPinger))
	checker.RegisterOptional("postgres", health.PingCheck(pgPinger))

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("POST /api/v1/documents", ingesthandler.New(ingestPublisher).Ingest)
	analytics.NewHandler(aggregator, source.NormalizeQuery).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	limiter := middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RateLimit(limiter, m)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("query expansion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("flushing all shards before shutdown")
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("query expansion service stopped")
}
