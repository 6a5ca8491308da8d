package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/medixcare/pharmacy-api/config"
	"github.com/medixcare/pharmacy-api/internal/email"
	healthHandler "github.com/medixcare/pharmacy-api/internal/handler/health"
	prescriptionHandler "github.com/medixcare/pharmacy-api/internal/handler/prescription"
	"github.com/medixcare/pharmacy-api/internal/middleware"
	"github.com/medixcare/pharmacy-api/internal/repository/postgres"
	"github.com/medixcare/pharmacy-api/internal/router"
	"github.com/medixcare/pharmacy-api/internal/service/audit"
	catalogService "github.com/medixcare/pharmacy-api/internal/service/catalog"
	"github.com/medixcare/pharmacy-api/internal/service/fileval"
	"github.com/medixcare/pharmacy-api/internal/service/intake"
	"github.com/medixcare/pharmacy-api/internal/service/ocr"
	"github.com/medixcare/pharmacy-api/internal/service/parser"
	prescriptionService "github.com/medixcare/pharmacy-api/internal/service/prescription"
	validationService "github.com/medixcare/pharmacy-api/internal/service/validation"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
	"github.com/medixcare/pharmacy-api/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("pharmacy", "api")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(baseRepo)
	attachmentRepo := postgres.NewFileAttachmentRepository(baseRepo)
	mentionRepo := postgres.NewMedicineMentionRepository(baseRepo)
	validationLogRepo := postgres.NewValidationLogRepository(baseRepo)
	catalogRepo := postgres.NewCatalogRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	// Object storage
	gateway, err := newGateway(cfg.Storage, appLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	// Email notifications
	var notifier email.Service
	if cfg.SMTP.Enabled {
		notifier = email.NewService(email.Config{
			Host:          cfg.SMTP.Host,
			Port:          cfg.SMTP.Port,
			Username:      cfg.SMTP.Username,
			Password:      cfg.SMTP.Password,
			From:          cfg.SMTP.From,
			PharmacyInbox: cfg.SMTP.PharmacyInbox,
		}, appLogger)
	} else {
		notifier = email.NewNoopService(appLogger)
	}

	// Services
	validator := fileval.NewService(fileval.Config{
		MaxFileSize:   cfg.Intake.MaxFileSizeBytes,
		MaxBatchSize:  cfg.Intake.MaxBatchSize,
		AcceptedTypes: cfg.Intake.AcceptedTypes,
	})
	ocrProvider := ocr.NewHTTPProvider(ocr.HTTPProviderConfig{
		Endpoint:       cfg.OCR.BaseURL,
		Timeout:        cfg.OCR.Timeout(),
		RequestsPerSec: cfg.OCR.RatePerSecond,
		Burst:          cfg.OCR.Burst,
	})
	ocrSvc := ocr.NewService(ocrProvider, attachmentRepo, appLogger, appMetrics)
	parserSvc := parser.NewService(parser.DefaultTable())
	catalogSvc := catalogService.NewService(catalogRepo, appLogger)
	scoringSvc := validationService.NewService(appLogger, appMetrics)
	auditSvc := audit.NewService(validationLogRepo, appLogger)
	prescriptionSvc := prescriptionService.NewService(
		prescriptionRepo, validationLogRepo, notifier, appLogger, appMetrics)
	intakeSvc := intake.NewService(
		validator, gateway, ocrSvc, parserSvc, catalogSvc, scoringSvc,
		prescriptionSvc, auditSvc, attachmentRepo, mentionRepo, outboxRepo,
		appLogger, appMetrics)

	// Handlers
	healthH := healthHandler.NewHandler(db)
	prescriptionH := prescriptionHandler.NewHandler(
		prescriptionSvc, intakeSvc, gateway, attachmentRepo, mentionRepo)

	r := router.NewRouter(healthH, prescriptionH, router.Config{
		RateLimit:  rate.Limit(100),
		RateBurst:  200,
		CORSConfig: middleware.DefaultCORSConfig(),
	})
	r.Setup()

	timeout := 30 * time.Second
	if cfg.Server.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	go func() {
		appLogger.Info("Starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Graceful shutdown failed")
	}
}

func newGateway(cfg config.StorageConfig, appLogger *logger.Logger) (storage.Gateway, error) {
	switch cfg.Backend {
	case "local":
		return storage.NewLocalGateway(cfg.LocalDir, "http://localhost/files")
	default:
		return storage.NewGCSGateway(context.Background(), storage.GCSConfig{
			BucketName:      cfg.Bucket,
			CDNDomain:       cfg.CDNDomain,
			CredentialsFile: cfg.CredentialsFile,
		}, appLogger)
	}
}
