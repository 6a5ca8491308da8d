package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medixcare/pharmacy-api/config"
	"github.com/medixcare/pharmacy-api/internal/repository/postgres"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/messaging/redis"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
	"github.com/medixcare/pharmacy-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("pharmacy", "worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: time.Second,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	validationLogRepo := postgres.NewValidationLogRepository(baseRepo)

	processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     batchSize(cfg.Outbox.BatchSize),
		PollInterval:  cfg.Outbox.PollInterval(),
		RetryAttempts: retryAttempts(cfg.Outbox.MaxRetries),
		RetryDelay:    5 * time.Second,
	}, appLogger, appMetrics)

	retentionDays := cfg.Retention.ValidationLogDays
	if retentionDays <= 0 {
		retentionDays = 365
	}
	sweepInterval := time.Duration(cfg.Retention.SweepIntervalHours) * time.Hour
	if sweepInterval <= 0 {
		sweepInterval = 24 * time.Hour
	}
	retention := worker.NewRetentionWorker(
		validationLogRepo, outboxRepo, retentionDays, sweepInterval, appLogger)

	setupHealthCheck(appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Shutting down")
		cancel()
	}()

	go retention.Start(ctx)
	processor.Start(ctx)
}

func batchSize(v int) int {
	if v <= 0 {
		return 100
	}
	return v
}

func retryAttempts(v int) int {
	if v <= 0 {
		return 3
	}
	return v
}

func setupHealthCheck(appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			appLogger.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
}
