package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/searchsync/internal/config"
	"github.com/utafrali/searchsync/internal/connection"
	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/event"
	gwhealth "github.com/utafrali/searchsync/internal/health"
	handler "github.com/utafrali/searchsync/internal/handler/http"
	"github.com/utafrali/searchsync/internal/service"
	"github.com/utafrali/searchsync/internal/source"
	"github.com/utafrali/searchsync/internal/store"
	esstore "github.com/utafrali/searchsync/internal/store/elasticsearch"
	"github.com/utafrali/searchsync/internal/store/memory"
	gwsync "github.com/utafrali/searchsync/internal/sync"
	pkghealth "github.com/utafrali/searchsync/pkg/health"
	"github.com/utafrali/searchsync/pkg/httpclient"
	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
	"github.com/utafrali/searchsync/pkg/tracing"
)

// App wires together all dependencies and runs the gateway.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	probe           *gwhealth.Probe
	consumers       []*pkgkafka.Consumer
	dlq             *pkgkafka.DLQProducer
	producer        *pkgkafka.Producer
	httpServer      *http.Server
	tracingShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	tracingShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "searchsync-gateway",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Index store backend.
	var st store.IndexStore
	switch cfg.StoreBackend {
	case "elasticsearch":
		desc, err := connection.Build(connection.Options{
			Hostname:     cfg.StoreHostname,
			Port:         cfg.StorePort,
			Username:     cfg.StoreUsername,
			Password:     cfg.StorePassword,
			AuthEnabled:  cfg.StoreAuthEnabled,
			Timeout:      cfg.StoreTimeout,
			DefaultIndex: cfg.IndexName,
		})
		if err != nil {
			return nil, fmt.Errorf("build store connection: %w", err)
		}
		st, err = esstore.NewClient(desc, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch store: %w", err)
		}
		logger.Info("elasticsearch index store initialized",
			slog.String("addr", desc.Addr()),
			slog.String("index", cfg.IndexName),
		)
	default:
		st = memory.New(cfg.IndexName)
		logger.Info("in-memory index store initialized")
	}

	handle := domain.IndexHandle{IndexName: cfg.IndexName, EntityType: cfg.EntityType}
	probe := gwhealth.NewProbe(st, &handle, cfg.ProbeInterval, logger)

	// Catalog source for reindexing, when configured.
	var catalog source.Catalog
	if cfg.CatalogURL != "" {
		catalog = source.NewClient(cfg.CatalogURL, httpclient.DefaultConfig(), cfg.CatalogPageSize, logger)
		logger.Info("catalog source initialized", slog.String("url", cfg.CatalogURL))
	}

	policy := gwsync.RetryPolicy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		Backoff:      gwsync.ParseBackoff(cfg.RetryBackoff),
		BaseInterval: cfg.RetryBaseInterval,
		MaxInterval:  cfg.RetryMaxInterval,
	}
	gateway := service.NewGateway(st, probe, catalog, policy, cfg.MaxBatchSize, logger)

	// Kafka consumers for catalog change events, plus a producer for
	// reindex-completion notifications.
	var consumers []*pkgkafka.Consumer
	var dlq *pkgkafka.DLQProducer
	var producer *pkgkafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		gateway.WithPublisher(producer)

		var idem pkgkafka.IdempotencyStore
		switch cfg.IdempotencyBackend {
		case "redis":
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			idem = pkgkafka.NewRedisIdempotencyStore(client, "searchsync", cfg.IdempotencyTTL)
			logger.Info("redis idempotency store initialized", slog.String("addr", cfg.RedisAddr))
		default:
			idem = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
		}

		dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		handlers := event.NewHandlers(gateway, logger)

		topicHandlers := map[string]pkgkafka.Handler{
			event.TopicDocumentUpdated: handlers.HandleDocumentUpdated,
			event.TopicDocumentDeleted: handlers.HandleDocumentDeleted,
		}
		for topic, h := range topicHandlers {
			c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:  cfg.KafkaBrokers,
				GroupID:  cfg.KafkaGroupID,
				Topic:    topic,
				MinBytes: 1,
				MaxBytes: 10e6,
			}, pkgkafka.IdempotentHandler(idem, h, logger), logger).WithDLQ(dlq)
			consumers = append(consumers, c)
		}
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(topicHandlers)),
		)
	}

	// Health checks.
	healthHandler := pkghealth.NewHandler()
	healthHandler.Register("index_store", probe.ReadinessChecker())
	if len(cfg.KafkaBrokers) > 0 {
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	router := handler.NewRouter(gateway, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		probe:           probe,
		consumers:       consumers,
		dlq:             dlq,
		producer:        producer,
		httpServer:      httpServer,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Run starts the HTTP server, probe loop, and Kafka consumers, blocking
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	go a.probe.Start(ctx)

	for _, c := range a.consumers {
		c := c
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
