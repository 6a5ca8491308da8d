package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/medixcare/pharmacy-api/internal/model"
)

// All repository interfaces in one file
type (
	// PrescriptionRepository handles prescription persistence. Rows are
	// never deleted, only status-transitioned.
	PrescriptionRepository interface {
		Create(ctx context.Context, p *model.Prescription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		Update(ctx context.Context, p *model.Prescription) error
		UpdateStatus(ctx context.Context, p *model.Prescription, entry *model.ValidationLogEntry, event *model.OutboxEvent) error
		List(ctx context.Context, filters *model.PrescriptionFilters) ([]*model.Prescription, int64, error)
	}

	FileAttachmentRepository interface {
		Create(ctx context.Context, att *model.FileAttachment) error
		Get(ctx context.Context, id uuid.UUID) (*model.FileAttachment, error)
		ListForPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.FileAttachment, error)
		MarkProcessing(ctx context.Context, id uuid.UUID) error
		MarkCompleted(ctx context.Context, id uuid.UUID, text string, confidence float64, source string) error
		MarkFailed(ctx context.Context, id uuid.UUID) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	MedicineMentionRepository interface {
		ReplaceForPrescription(ctx context.Context, prescriptionID uuid.UUID, mentions []*model.MedicineMention) error
		ListForPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.MedicineMention, error)
		UpdateVerification(ctx context.Context, id uuid.UUID, status string) error
	}

	// ValidationLogRepository is append-only inside the retention window.
	ValidationLogRepository interface {
		Create(ctx context.Context, entry *model.ValidationLogEntry) error
		ListForPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.ValidationLogEntry, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	CatalogRepository interface {
		Search(ctx context.Context, nameFragment string) ([]*model.CatalogMedicine, error)
		Get(ctx context.Context, id uuid.UUID) (*model.CatalogMedicine, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status string, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
