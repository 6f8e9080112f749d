package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/config"
	"github.com/vaibhav071104/vaultguard/internal/handler"
	"github.com/vaibhav071104/vaultguard/internal/infra/alert"
	"github.com/vaibhav071104/vaultguard/internal/infra/memory"
	"github.com/vaibhav071104/vaultguard/internal/infra/observability"
	"github.com/vaibhav071104/vaultguard/internal/infra/postgres"
	"github.com/vaibhav071104/vaultguard/internal/infra/resilience"
	"github.com/vaibhav071104/vaultguard/internal/job"
	"github.com/vaibhav071104/vaultguard/internal/port"
	"github.com/vaibhav071104/vaultguard/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store", cfg.Store),
		zap.String("alert_sink", cfg.AlertSink),
		zap.Duration("lock_timeout", cfg.LockTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("fraud_report_interval", cfg.FraudReportInterval),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "vaultguard")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Stores ---
	var ledgerStore port.LedgerStore
	var userStore port.UserStore

	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store: data is lost on restart")
		users := memory.NewUserStore()
		ledgerStore = memory.NewLedgerStore(users)
		userStore = users
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := postgres.Migrate(context.Background(), pool); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		ledgerStore = postgres.NewLedgerStore(pool, cfg.LockTimeout.Milliseconds(), logger)
		userStore = postgres.NewUserStore(pool)
		logger.Info("connected to postgres")
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Alert sink ---
	var sink port.AlertSink
	switch cfg.AlertSink {
	case "webhook":
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		cb := resilience.NewCircuitBreaker("alert-webhook")
		sink = alert.NewWebhookSink(httpClient, cfg.AlertWebhookURL, cfg.AlertWebhookKey, cfg.AlertFrom, cb)
		logger.Info("alerts via webhook", zap.String("url", cfg.AlertWebhookURL))
	case "kafka":
		kafkaSink := alert.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		defer kafkaSink.Close()
		sink = kafkaSink
		logger.Info("alerts via kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaAlertTopic))
	default:
		sink = alert.NewLogSink(logger)
		logger.Info("alerts via log sink")
	}

	// --- Services ---
	engine := service.NewLedgerEngine(
		ledgerStore, userStore, sink, cfg.AlertRecipient,
		resilienceCfg, bulkhead, metrics, logger,
	)
	authSvc := service.NewAuthService(userStore, ledgerStore, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	reporting := service.NewReportingService(ledgerStore, metrics, cfg.CacheTTL, cfg.TopWalletsLimit)

	// --- Router ---
	router := handler.NewRouter(engine, authSvc, reporting, metrics, logger)

	// --- Server + background jobs ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := job.NewFraudReport(reporting, cfg.FraudReportInterval, logger).Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
