// Package audit records validation check outcomes in the append-only log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
	"github.com/medixcare/pharmacy-api/pkg/logger"
)

type Service struct {
	repo   repository.ValidationLogRepository
	logger *logger.Logger
}

func NewService(repo repository.ValidationLogRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RecordChecks writes one log entry per validation check so the audit
// trail shows exactly what each scoring run saw.
func (s *Service) RecordChecks(ctx context.Context, prescriptionID uuid.UUID, results *model.ValidationResults) error {
	entries := []struct {
		checkType string
		status    string
		severity  int
		details   interface{}
	}{
		{model.ValidationTypeFormat, checkStatus(results.Format.Passed), formatSeverity(results.Format), results.Format},
		{model.ValidationTypeContent, "recorded", model.SeverityNormal, results.Content},
		{model.ValidationTypeMedicine, medicineStatus(results.Medicine), medicineSeverity(results.Medicine), results.Medicine},
		{model.ValidationTypeRegulatory, checkStatus(results.Regulatory.Compliant), regulatorySeverity(results.Regulatory), results.Regulatory},
	}

	now := time.Now()
	for _, e := range entries {
		details, err := json.Marshal(e.details)
		if err != nil {
			return fmt.Errorf("failed to marshal %s check details: %w", e.checkType, err)
		}
		entry := &model.ValidationLogEntry{
			ID:             uuid.New(),
			PrescriptionID: prescriptionID,
			ValidationType: e.checkType,
			Status:         e.status,
			Details:        details,
			Severity:       e.severity,
			CreatedAt:      now,
		}
		if err := s.repo.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to record %s check: %w", e.checkType, err)
		}
	}
	return nil
}

func (s *Service) ListForPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.ValidationLogEntry, error) {
	return s.repo.ListForPrescription(ctx, prescriptionID)
}

func checkStatus(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func formatSeverity(c model.FormatCheck) int {
	if !c.Passed {
		return model.SeverityFailure
	}
	if len(c.Warnings) > 0 {
		return model.SeverityWarning
	}
	return model.SeverityNormal
}

func medicineStatus(c model.MedicineCheck) string {
	if c.MedicinesFound > 0 && c.MedicinesValidated == c.MedicinesFound {
		return "passed"
	}
	return "partial"
}

func medicineSeverity(c model.MedicineCheck) int {
	if c.MedicinesFound == 0 {
		return model.SeverityFailure
	}
	if len(c.Unrecognized) > 0 {
		return model.SeverityWarning
	}
	return model.SeverityNormal
}

func regulatorySeverity(c model.RegulatoryCheck) int {
	if !c.Compliant {
		return model.SeverityWarning
	}
	return model.SeverityNormal
}
