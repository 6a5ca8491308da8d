package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
)

type fileAttachmentRepository struct {
	BaseRepository
}

func NewFileAttachmentRepository(base BaseRepository) repository.FileAttachmentRepository {
	return &fileAttachmentRepository{base}
}

func (r *fileAttachmentRepository) Create(ctx context.Context, att *model.FileAttachment) error {
	query := `
		INSERT INTO file_attachments (
			id, prescription_id, file_name, storage_path, storage_url,
			file_size, mime_type, processing_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now()
	if att.CreatedAt.IsZero() {
		att.CreatedAt = now
	}
	att.UpdatedAt = now

	_, err := r.GetDB().ExecContext(ctx, query,
		att.ID,
		att.PrescriptionID,
		att.FileName,
		att.StoragePath,
		att.StorageURL,
		att.FileSize,
		att.MimeType,
		att.ProcessingStatus,
		att.CreatedAt,
		att.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file attachment: %w", err)
	}
	return nil
}

func (r *fileAttachmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.FileAttachment, error) {
	query := `
		SELECT * FROM file_attachments
		WHERE id = $1 AND deleted_at IS NULL
	`
	var att model.FileAttachment
	if err := r.GetDB().GetContext(ctx, &att, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("file attachment not found")
		}
		return nil, fmt.Errorf("failed to get file attachment: %w", err)
	}
	return &att, nil
}

func (r *fileAttachmentRepository) ListForPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.FileAttachment, error) {
	query := `
		SELECT * FROM file_attachments
		WHERE prescription_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`
	var attachments []*model.FileAttachment
	if err := r.GetDB().SelectContext(ctx, &attachments, query, prescriptionID); err != nil {
		return nil, fmt.Errorf("failed to list file attachments: %w", err)
	}
	return attachments, nil
}

func (r *fileAttachmentRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, model.ProcessingStatusProcessing)
}

// MarkCompleted writes OCR output exactly once: a completed attachment is
// never re-completed.
func (r *fileAttachmentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, text string, confidence float64, source string) error {
	query := `
		UPDATE file_attachments SET
			processing_status = $1,
			ocr_text = $2,
			ocr_confidence = $3,
			ocr_source = $4,
			updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL AND processing_status != $1
	`
	result, err := r.GetDB().ExecContext(ctx, query,
		model.ProcessingStatusCompleted, text, confidence, source, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to complete file attachment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file attachment not found or already completed")
	}
	return nil
}

func (r *fileAttachmentRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, model.ProcessingStatusFailed)
}

func (r *fileAttachmentRepository) setStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE file_attachments SET processing_status = $1, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`
	result, err := r.GetDB().ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update attachment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file attachment not found")
	}
	return nil
}

func (r *fileAttachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE file_attachments
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete file attachment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file attachment not found")
	}
	return nil
}
