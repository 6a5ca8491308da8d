// Package prescription owns the prescription status state machine. All
// status writes go through this service so every transition lands in the
// audit log and the event outbox atomically.
package prescription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
	apperrors "github.com/medixcare/pharmacy-api/pkg/errors"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
)

// SystemActor identifies transitions driven by the pipeline itself.
const SystemActor = "system"

// allowedTransitions is the full state machine. Rejection stays open until
// fulfillment; fulfillment is terminal.
var allowedTransitions = map[string][]string{
	model.PrescriptionStatusPending:        {model.PrescriptionStatusProcessing, model.PrescriptionStatusRejected},
	model.PrescriptionStatusProcessing:     {model.PrescriptionStatusValidated, model.PrescriptionStatusReviewRequired, model.PrescriptionStatusRejected},
	model.PrescriptionStatusValidated:      {model.PrescriptionStatusFulfilled, model.PrescriptionStatusRejected},
	model.PrescriptionStatusReviewRequired: {model.PrescriptionStatusValidated, model.PrescriptionStatusRejected},
	model.PrescriptionStatusRejected:       {},
	model.PrescriptionStatusFulfilled:      {},
}

// Notifier tells pharmacy staff about prescriptions that need a human.
type Notifier interface {
	NotifyReviewRequired(ctx context.Context, p *model.Prescription) error
	NotifyRejected(ctx context.Context, p *model.Prescription, reasons []string) error
}

type Service struct {
	repo     repository.PrescriptionRepository
	logRepo  repository.ValidationLogRepository
	notifier Notifier
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(repo repository.PrescriptionRepository, logRepo repository.ValidationLogRepository, notifier Notifier, logger *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		logRepo:  logRepo,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
	}
}

// CreateInput carries intake fields for a new prescription.
type CreateInput struct {
	PatientName        string    `json:"patient_name" binding:"required"`
	PatientAge         string    `json:"patient_age"`
	DoctorName         string    `json:"doctor_name" binding:"required"`
	DoctorRegistration string    `json:"doctor_registration"`
	Diagnosis          string    `json:"diagnosis"`
	PrescriptionDate   time.Time `json:"prescription_date" binding:"required"`
	PriorityLevel      int       `json:"priority_level"`
}

// Create registers a new prescription in the pending state.
func (s *Service) Create(ctx context.Context, input *CreateInput) (*model.Prescription, error) {
	if input.PriorityLevel < 1 || input.PriorityLevel > 3 {
		input.PriorityLevel = 1
	}

	p := &model.Prescription{
		PrescriptionNumber: generateNumber(),
		PatientName:        input.PatientName,
		PatientAge:         input.PatientAge,
		DoctorName:         input.DoctorName,
		DoctorRegistration: input.DoctorRegistration,
		Diagnosis:          input.Diagnosis,
		PrescriptionDate:   input.PrescriptionDate,
		Status:             model.PrescriptionStatusPending,
		PriorityLevel:      input.PriorityLevel,
	}
	p.ID = uuid.New()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.SetExpiry()

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create prescription: %w", err)
	}

	s.logger.Info("Prescription created",
		"prescription_id", p.ID.String(), "number", p.PrescriptionNumber)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.PrescriptionFilters) ([]*model.Prescription, int64, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) ValidationHistory(ctx context.Context, id uuid.UUID) ([]*model.ValidationLogEntry, error) {
	return s.logRepo.ListForPrescription(ctx, id)
}

// MarkProcessing moves a pending prescription into processing once
// extraction starts.
func (s *Service) MarkProcessing(ctx context.Context, p *model.Prescription) error {
	return s.transition(ctx, p, model.PrescriptionStatusProcessing, SystemActor, nil, nil)
}

// ApplyValidation persists a scoring outcome and moves the prescription to
// validated or review_required. The full check record replaces any
// previous one.
func (s *Service) ApplyValidation(ctx context.Context, p *model.Prescription, results *model.ValidationResults, score float64, status string) error {
	if status != model.PrescriptionStatusValidated && status != model.PrescriptionStatusReviewRequired {
		return apperrors.BadRequest(fmt.Sprintf("invalid scoring outcome status %q", status), nil)
	}

	p.ValidationResults = results
	p.ValidationScore = score

	details, err := json.Marshal(map[string]interface{}{
		"score":   score,
		"results": results,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal validation details: %w", err)
	}

	if err := s.transition(ctx, p, status, SystemActor, details, nil); err != nil {
		return err
	}

	if status == model.PrescriptionStatusReviewRequired && s.notifier != nil {
		if err := s.notifier.NotifyReviewRequired(ctx, p); err != nil {
			s.logger.Error(err, "Failed to send review notification",
				"prescription_id", p.ID.String())
		}
	}
	return nil
}

// Reject records a manual pharmacist rejection. Reasons and the acting
// identity are both required; scoring checks never run here.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reasons []string, actor string) (*model.Prescription, error) {
	reasons = trimNonEmpty(reasons)
	if len(reasons) == 0 {
		return nil, apperrors.BadRequest("rejection requires at least one reason", nil)
	}
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.BadRequest("rejection requires an acting identity", nil)
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p.RejectionReasons = reasons
	details, err := json.Marshal(map[string]interface{}{"reasons": reasons})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rejection details: %w", err)
	}

	if err := s.transition(ctx, p, model.PrescriptionStatusRejected, actor, details, nil); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyRejected(ctx, p, reasons); err != nil {
			s.logger.Error(err, "Failed to send rejection notification",
				"prescription_id", p.ID.String())
		}
	}
	return p, nil
}

// Approve lets a pharmacist move a review_required prescription to
// validated after manual inspection.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor string) (*model.Prescription, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.BadRequest("approval requires an acting identity", nil)
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, p, model.PrescriptionStatusValidated, actor, nil, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// Fulfill marks a validated prescription as dispensed. Terminal.
func (s *Service) Fulfill(ctx context.Context, id uuid.UUID, actor string) (*model.Prescription, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.BadRequest("fulfillment requires an acting identity", nil)
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, p, model.PrescriptionStatusFulfilled, actor, nil, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// transition enforces the state machine and persists the status change,
// its audit entry, and an outbox event in one transaction.
func (s *Service) transition(ctx context.Context, p *model.Prescription, newStatus, actor string, details json.RawMessage, occurredAt *time.Time) error {
	oldStatus := p.Status
	if !transitionAllowed(oldStatus, newStatus) {
		return apperrors.Conflict(
			fmt.Sprintf("cannot transition prescription from %s to %s", oldStatus, newStatus), nil)
	}

	now := time.Now()
	if occurredAt == nil {
		occurredAt = &now
	}

	p.Status = newStatus
	switch newStatus {
	case model.PrescriptionStatusValidated,
		model.PrescriptionStatusRejected,
		model.PrescriptionStatusFulfilled:
		p.ProcessedAt = occurredAt
	}

	entry := &model.ValidationLogEntry{
		ID:             uuid.New(),
		PrescriptionID: p.ID,
		ValidationType: model.ValidationTypeApproval,
		Status:         newStatus,
		Details:        transitionDetails(oldStatus, details),
		Severity:       transitionSeverity(newStatus),
		Actor:          actor,
		CreatedAt:      *occurredAt,
	}

	payload, err := json.Marshal(model.StatusChangedEvent{
		PrescriptionID: p.ID,
		OldStatus:      oldStatus,
		NewStatus:      newStatus,
		Actor:          actor,
		Score:          p.ValidationScore,
		OccurredAt:     *occurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventPrescriptionStatusChanged,
		Payload:   payload,
		Status:    string(model.OutboxStatusPending),
	}
	event.CreatedAt = now
	event.UpdatedAt = now

	if err := s.repo.UpdateStatus(ctx, p, entry, event); err != nil {
		p.Status = oldStatus
		return fmt.Errorf("failed to update prescription status: %w", err)
	}

	s.metrics.StatusTransitions.WithLabelValues(oldStatus, newStatus).Inc()
	s.logger.Info("Prescription status changed",
		"prescription_id", p.ID.String(), "from", oldStatus, "to", newStatus, "actor", actor)
	return nil
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func transitionSeverity(status string) int {
	switch status {
	case model.PrescriptionStatusRejected:
		return model.SeverityFailure
	case model.PrescriptionStatusReviewRequired:
		return model.SeverityWarning
	default:
		return model.SeverityNormal
	}
}

func transitionDetails(oldStatus string, extra json.RawMessage) json.RawMessage {
	base := map[string]interface{}{"old_status": oldStatus}
	if len(extra) > 0 {
		var m map[string]interface{}
		if err := json.Unmarshal(extra, &m); err == nil {
			for k, v := range m {
				base[k] = v
			}
		}
	}
	out, _ := json.Marshal(base)
	return out
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func generateNumber() string {
	return fmt.Sprintf("RX-%s-%s",
		time.Now().Format("20060102"),
		strings.ToUpper(uuid.NewString()[:8]))
}
