package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stockledger-api/internal/cache"
	"stockledger-api/internal/config"
	"stockledger-api/internal/handler"
	"stockledger-api/internal/logger"
	"stockledger-api/internal/metrics"
	"stockledger-api/internal/middleware"
	"stockledger-api/internal/notify"
	"stockledger-api/internal/observability"
	"stockledger-api/internal/repository"
	"stockledger-api/internal/router"
	"stockledger-api/internal/service"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting", zap.String("app", cfg.App.Name), zap.String("version", cfg.App.Version), zap.String("env", cfg.App.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		URLPath:        cfg.Telemetry.URLPath,
		AuthHeader:     cfg.Telemetry.AuthHeader,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	readiness := map[string]handler.Pinger{}

	// Redis backs the shared cache and the cross-instance relay.
	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" || cfg.Notify.RedisChannel != "" {
		redisClient, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		readiness["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
		log.Info("redis connected", zap.String("addr", cfg.Cache.RedisAddress()))
	}

	var c cache.Cache
	if cfg.Cache.Type == "redis" {
		c = cache.NewRedisCache(redisClient, cfg.Cache.KeyPrefix, log)
	} else {
		c = cache.NewMemoryCache()
	}
	defer c.Close()

	hostname, _ := os.Hostname()
	hub := notify.NewHub(notify.HubConfig{
		Origin:           fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		SubscriberBuffer: cfg.Notify.SubscriberBuffer,
	}, log, m)
	defer hub.Close()

	if cfg.Notify.RedisChannel != "" {
		relay, err := notify.NewRedisRelay(ctx, redisClient, cfg.Notify.RedisChannel, hub, log)
		if err != nil {
			return fmt.Errorf("failed to start notification relay: %w", err)
		}
		defer relay.Close()
		hub.AddSink(relay)
	}

	if len(cfg.Notify.KafkaBrokers) > 0 {
		sink := notify.NewKafkaSink(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		defer sink.Close()
		hub.AddSink(sink)
		log.Info("kafka sink enabled", zap.Strings("brokers", cfg.Notify.KafkaBrokers), zap.String("topic", cfg.Notify.KafkaTopic))
	}

	var archive repository.NotificationArchive
	if cfg.Notify.MongoURI != "" {
		mongoArchive, err := repository.NewMongoNotificationArchive(ctx, cfg.Notify.MongoURI, cfg.Notify.MongoDatabase, cfg.Notify.MongoCollection)
		if err != nil {
			return fmt.Errorf("failed to open notification archive: %w", err)
		}
		defer mongoArchive.Close()
		archive = mongoArchive
		hub.AddSink(notify.NewArchiveSink(archive))
		log.Info("notification archive enabled", zap.String("database", cfg.Notify.MongoDatabase))
	}

	// Services
	engine := service.NewEngine(store, hub, m, log, service.EngineConfig{LowStockThreshold: cfg.Ledger.LowStockThreshold})
	reports := service.NewReportService(store, c, cfg.Cache.ReportTTL, cfg.Ledger.LowStockThreshold, log)
	engine.OnCommit(reports.Invalidate)
	audits := service.NewAuditService(store, engine, hub, m, log)
	catalog := service.NewCatalogService(store, engine, hub, log)

	tokens, err := service.NewTokenService(c, store, service.TokenConfig{
		SigningKey: []byte(cfg.Auth.TokenKey),
		LoginKey:   cfg.Auth.LoginKey,
		TTL:        cfg.Auth.TokenTTL,
		KeyPrefix:  cfg.Auth.KeyPrefix,
	}, log)
	if err != nil {
		return err
	}
	if cfg.Auth.LoginKey == "" {
		log.Warn("LOGIN_KEY is not set, token login is disabled")
	}

	scanner := service.NewDriftScanner(store, hub, m, log, service.DriftScanConfig{Interval: cfg.Ledger.DriftScanInterval})
	if cfg.Ledger.DriftScanInterval > 0 {
		scanner.Start()
		defer scanner.Stop()
	}

	httpLog := logger.Component(log, "HTTP")
	r := router.New(router.Config{
		Log:                httpLog,
		Metrics:            m,
		Gatherer:           registry,
		CORSOrigins:        cfg.Server.CORSOrigins,
		Handler:            handler.New(store, cfg.App.Version, readiness),
		AuthHandler:        handler.NewAuthHandler(tokens, catalog, httpLog),
		AdminHandler:       handler.NewAdminHandler(store, hub, scanner, httpLog),
		LogHandler:         handler.NewNotificationLogHandler(archive, httpLog),
		WarehouseHandler:   handler.NewWarehouseHandler(catalog, httpLog),
		ItemHandler:        handler.NewItemHandler(catalog, httpLog),
		UserHandler:        handler.NewUserHandler(catalog, httpLog),
		TransactionHandler: handler.NewTransactionHandler(engine, reports, httpLog),
		AuditHandler:       handler.NewAuditHandler(audits, httpLog),
		ReportHandler:      handler.NewReportHandler(reports, httpLog),
		EventHandler:       handler.NewEventHandler(hub, httpLog),
		AuthMiddleware:     middleware.NewAuthMiddleware(middleware.AuthConfig{Resolver: tokens, Log: httpLog}),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return serve(ctx, log, srv, hub, cfg.Server.ShutdownTimeout)
}

// serve runs srv until ctx is done or the listener fails. Either way the
// hub is closed before serve returns, so its sink queues drain while the
// sinks are still open.
func serve(ctx context.Context, log *zap.Logger, srv *http.Server, hub interface{ Close() }, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		log.Error("server stopped unexpectedly", zap.Error(serveErr))
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Closing the hub also ends open event streams so Shutdown does not wait on them.
	hub.Close()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
	return serveErr
}
