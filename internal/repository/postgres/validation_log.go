package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
)

type validationLogRepository struct {
	BaseRepository
}

func NewValidationLogRepository(base BaseRepository) repository.ValidationLogRepository {
	return &validationLogRepository{base}
}

func (r *validationLogRepository) Create(ctx context.Context, entry *model.ValidationLogEntry) error {
	query := `
		INSERT INTO validation_logs (
			id, prescription_id, validation_type, status, details,
			severity, actor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		entry.ID,
		entry.PrescriptionID,
		entry.ValidationType,
		entry.Status,
		entry.Details,
		entry.Severity,
		entry.Actor,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create validation log: %w", err)
	}
	return nil
}

func (r *validationLogRepository) ListForPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.ValidationLogEntry, error) {
	query := `
		SELECT * FROM validation_logs
		WHERE prescription_id = $1
		ORDER BY created_at ASC
	`
	var entries []*model.ValidationLogEntry
	if err := r.GetDB().SelectContext(ctx, &entries, query, prescriptionID); err != nil {
		return nil, fmt.Errorf("failed to list validation logs: %w", err)
	}
	return entries, nil
}

func (r *validationLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM validation_logs WHERE created_at < $1`
	result, err := r.GetDB().ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete validation logs: %w", err)
	}
	return result.RowsAffected()
}
