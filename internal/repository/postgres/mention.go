package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
)

type medicineMentionRepository struct {
	BaseRepository
}

func NewMedicineMentionRepository(base BaseRepository) repository.MedicineMentionRepository {
	return &medicineMentionRepository{base}
}

// ReplaceForPrescription swaps the full mention set in one transaction. The
// aggregator recomputes mentions wholesale, so partial updates would only
// leave stale rows behind.
func (r *medicineMentionRepository) ReplaceForPrescription(ctx context.Context, prescriptionID uuid.UUID, mentions []*model.MedicineMention) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM medicine_mentions WHERE prescription_id = $1`, prescriptionID); err != nil {
			return fmt.Errorf("failed to clear medicine mentions: %w", err)
		}

		query := `
			INSERT INTO medicine_mentions (
				id, prescription_id, catalog_id, name, generic_name, dosage,
				frequency, duration, confidence, verification_status,
				requires_verification, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		for _, m := range mentions {
			if m.ID == uuid.Nil {
				m.ID = uuid.New()
			}
			m.PrescriptionID = prescriptionID
			now := time.Now()
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			m.UpdatedAt = now

			if _, err := tx.ExecContext(ctx, query,
				m.ID,
				m.PrescriptionID,
				m.CatalogID,
				m.Name,
				m.GenericName,
				m.Dosage,
				m.Frequency,
				m.Duration,
				m.Confidence,
				m.VerificationStatus,
				m.RequiresVerification,
				m.CreatedAt,
				m.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert medicine mention: %w", err)
			}
		}
		return nil
	})
}

func (r *medicineMentionRepository) ListForPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.MedicineMention, error) {
	query := `
		SELECT * FROM medicine_mentions
		WHERE prescription_id = $1
		ORDER BY confidence DESC, name ASC
	`
	var mentions []*model.MedicineMention
	if err := r.GetDB().SelectContext(ctx, &mentions, query, prescriptionID); err != nil {
		return nil, fmt.Errorf("failed to list medicine mentions: %w", err)
	}
	return mentions, nil
}

func (r *medicineMentionRepository) UpdateVerification(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE medicine_mentions
		SET verification_status = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.GetDB().ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update mention verification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("medicine mention not found")
	}
	return nil
}
