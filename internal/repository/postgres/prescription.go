package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
)

type prescriptionRepository struct {
	BaseRepository
}

func NewPrescriptionRepository(base BaseRepository) repository.PrescriptionRepository {
	return &prescriptionRepository{base}
}

// sortColumns is the allowlist for caller-chosen sort fields.
var sortColumns = map[string]string{
	"created_at":        "created_at",
	"prescription_date": "prescription_date",
	"validation_score":  "validation_score",
	"priority_level":    "priority_level",
	"status":            "status",
	"patient_name":      "patient_name",
	"doctor_name":       "doctor_name",
}

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (
			id, prescription_number, patient_name, patient_age, doctor_name,
			doctor_registration, diagnosis, prescription_date, expiry_date,
			status, validation_results, validation_score, rejection_reasons,
			priority_level, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	if err := marshalPrescriptionFields(p); err != nil {
		return err
	}

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.GetDB().ExecContext(ctx, query,
		p.ID,
		p.PrescriptionNumber,
		p.PatientName,
		p.PatientAge,
		p.DoctorName,
		p.DoctorRegistration,
		p.Diagnosis,
		p.PrescriptionDate,
		p.ExpiryDate,
		p.Status,
		p.ValidationJSON,
		p.ValidationScore,
		p.RejectionJSON,
		p.PriorityLevel,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `
		SELECT * FROM prescriptions
		WHERE id = $1 AND deleted_at IS NULL
	`
	var p model.Prescription
	if err := r.GetDB().GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("prescription not found")
		}
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}

	if err := unmarshalPrescriptionFields(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepository) Update(ctx context.Context, p *model.Prescription) error {
	if err := marshalPrescriptionFields(p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()

	query := `
		UPDATE prescriptions SET
			patient_name = $1,
			patient_age = $2,
			doctor_name = $3,
			doctor_registration = $4,
			diagnosis = $5,
			prescription_date = $6,
			expiry_date = $7,
			validation_results = $8,
			validation_score = $9,
			priority_level = $10,
			updated_at = $11
		WHERE id = $12 AND deleted_at IS NULL
	`
	result, err := r.GetDB().ExecContext(ctx, query,
		p.PatientName,
		p.PatientAge,
		p.DoctorName,
		p.DoctorRegistration,
		p.Diagnosis,
		p.PrescriptionDate,
		p.ExpiryDate,
		p.ValidationJSON,
		p.ValidationScore,
		p.PriorityLevel,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update prescription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("prescription not found")
	}
	return nil
}

// UpdateStatus persists a status transition, its audit entry, and its outbox
// event in one transaction so none can exist without the others.
func (r *prescriptionRepository) UpdateStatus(ctx context.Context, p *model.Prescription, entry *model.ValidationLogEntry, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := marshalPrescriptionFields(p); err != nil {
			return err
		}
		p.UpdatedAt = time.Now()

		query := `
			UPDATE prescriptions SET
				status = $1,
				validation_results = $2,
				validation_score = $3,
				rejection_reasons = $4,
				processed_at = $5,
				updated_at = $6
			WHERE id = $7 AND deleted_at IS NULL
		`
		result, err := tx.ExecContext(ctx, query,
			p.Status,
			p.ValidationJSON,
			p.ValidationScore,
			p.RejectionJSON,
			p.ProcessedAt,
			p.UpdatedAt,
			p.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update prescription status: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("prescription not found")
		}

		if entry != nil {
			if err := insertValidationLog(ctx, tx, entry); err != nil {
				return err
			}
		}

		if event != nil {
			if err := insertOutboxEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *prescriptionRepository) List(ctx context.Context, filters *model.PrescriptionFilters) ([]*model.Prescription, int64, error) {
	where := " WHERE deleted_at IS NULL"
	args := []interface{}{}

	if filters.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filters.Status)
	}
	if filters.DoctorName != "" {
		where += fmt.Sprintf(" AND doctor_name ILIKE $%d", len(args)+1)
		args = append(args, "%"+filters.DoctorName+"%")
	}
	if filters.PatientName != "" {
		where += fmt.Sprintf(" AND patient_name ILIKE $%d", len(args)+1)
		args = append(args, "%"+filters.PatientName+"%")
	}
	if filters.PriorityLevel != 0 {
		where += fmt.Sprintf(" AND priority_level = $%d", len(args)+1)
		args = append(args, filters.PriorityLevel)
	}
	if !filters.StartDate.IsZero() {
		where += fmt.Sprintf(" AND prescription_date >= $%d", len(args)+1)
		args = append(args, filters.StartDate)
	}
	if !filters.EndDate.IsZero() {
		where += fmt.Sprintf(" AND prescription_date <= $%d", len(args)+1)
		args = append(args, filters.EndDate)
	}
	if filters.SearchTerm != "" {
		where += fmt.Sprintf(
			" AND (doctor_name ILIKE $%d OR patient_name ILIKE $%d OR prescription_number ILIKE $%d OR diagnosis ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+filters.SearchTerm+"%")
	}

	var total int64
	if err := r.GetDB().GetContext(ctx, &total, "SELECT COUNT(*) FROM prescriptions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count prescriptions: %w", err)
	}

	orderBy := "created_at"
	if col, ok := sortColumns[filters.Sort.Field]; ok {
		orderBy = col
	}
	dir := "DESC"
	if filters.Sort.Dir == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf("SELECT * FROM prescriptions%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		where, orderBy, dir, len(args)+1, len(args)+2)
	args = append(args, filters.Pagination.Limit(), filters.Pagination.Offset())

	var prescriptions []*model.Prescription
	if err := r.GetDB().SelectContext(ctx, &prescriptions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list prescriptions: %w", err)
	}

	for _, p := range prescriptions {
		if err := unmarshalPrescriptionFields(p); err != nil {
			return nil, 0, err
		}
	}
	return prescriptions, total, nil
}

func marshalPrescriptionFields(p *model.Prescription) error {
	if p.ValidationResults != nil {
		data, err := json.Marshal(p.ValidationResults)
		if err != nil {
			return fmt.Errorf("failed to marshal validation results: %w", err)
		}
		p.ValidationJSON = data
	}
	if p.RejectionReasons != nil {
		data, err := json.Marshal(p.RejectionReasons)
		if err != nil {
			return fmt.Errorf("failed to marshal rejection reasons: %w", err)
		}
		p.RejectionJSON = data
	}
	return nil
}

func unmarshalPrescriptionFields(p *model.Prescription) error {
	if len(p.ValidationJSON) > 0 {
		var results model.ValidationResults
		if err := json.Unmarshal(p.ValidationJSON, &results); err != nil {
			return fmt.Errorf("failed to unmarshal validation results: %w", err)
		}
		p.ValidationResults = &results
	}
	if len(p.RejectionJSON) > 0 {
		var reasons []string
		if err := json.Unmarshal(p.RejectionJSON, &reasons); err != nil {
			return fmt.Errorf("failed to unmarshal rejection reasons: %w", err)
		}
		p.RejectionReasons = reasons
	}
	return nil
}

func insertValidationLog(ctx context.Context, tx *sqlx.Tx, entry *model.ValidationLogEntry) error {
	query := `
		INSERT INTO validation_logs (
			id, prescription_id, validation_type, status, details,
			severity, actor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
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
		return fmt.Errorf("failed to insert validation log: %w", err)
	}
	return nil
}

func insertOutboxEvent(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}
