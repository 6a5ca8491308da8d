package worker

import (
	"context"
	"time"

	"github.com/medixcare/pharmacy-api/internal/repository"
	"github.com/medixcare/pharmacy-api/pkg/logger"
)

// RetentionWorker prunes validation log entries and processed outbox events
// that have aged out of the retention window.
type RetentionWorker struct {
	logs          repository.ValidationLogRepository
	outbox        repository.OutboxRepository
	retentionDays int
	interval      time.Duration
	logger        *logger.Logger
}

func NewRetentionWorker(
	logs repository.ValidationLogRepository,
	outbox repository.OutboxRepository,
	retentionDays int,
	interval time.Duration,
	logger *logger.Logger,
) *RetentionWorker {
	return &RetentionWorker{
		logs:          logs,
		outbox:        outbox,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *RetentionWorker) cleanup(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	rows, err := w.logs.DeleteBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "Failed to prune validation logs")
	} else if rows > 0 {
		w.logger.Info("Pruned validation logs", "rows", rows)
	}

	rows, err = w.outbox.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "Failed to prune outbox events")
	} else if rows > 0 {
		w.logger.Info("Pruned processed outbox events", "rows", rows)
	}
}
