// Package intake runs the prescription processing pipeline: file
// validation, staged upload, OCR, parsing, aggregation, catalog
// cross-checking, scoring, and the resulting status transition.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
	"github.com/medixcare/pharmacy-api/internal/service/audit"
	"github.com/medixcare/pharmacy-api/internal/service/catalog"
	"github.com/medixcare/pharmacy-api/internal/service/fileval"
	"github.com/medixcare/pharmacy-api/internal/service/ocr"
	"github.com/medixcare/pharmacy-api/internal/service/parser"
	"github.com/medixcare/pharmacy-api/internal/service/prescription"
	"github.com/medixcare/pharmacy-api/internal/service/validation"
	apperrors "github.com/medixcare/pharmacy-api/pkg/errors"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
	"github.com/medixcare/pharmacy-api/pkg/storage"
)

// UploadFile is one candidate file with its content.
type UploadFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// ProgressFunc reports pipeline progress. Stage names follow the pipeline
// order; current counts files within the stage.
type ProgressFunc func(stage string, current, total int)

// Aggregate is the merged outcome of processing every file of one
// prescription. Text is the extracted text of all successful files in
// submission order, joined by blank lines.
type Aggregate struct {
	Mentions   []*model.MedicineMention
	Text       string
	Confidence float64
	Processed  int
	Failed     int
	Degraded   int
}

type Service struct {
	validator     *fileval.Service
	gateway       storage.Gateway
	extractor     *ocr.Service
	parser        *parser.Service
	catalog       *catalog.Service
	scorer        *validation.Service
	prescriptions *prescription.Service
	audit         *audit.Service
	files         repository.FileAttachmentRepository
	mentions      repository.MedicineMentionRepository
	outbox        repository.OutboxRepository
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

func NewService(
	validator *fileval.Service,
	gateway storage.Gateway,
	extractor *ocr.Service,
	p *parser.Service,
	cat *catalog.Service,
	scorer *validation.Service,
	prescriptions *prescription.Service,
	auditor *audit.Service,
	files repository.FileAttachmentRepository,
	mentions repository.MedicineMentionRepository,
	outbox repository.OutboxRepository,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		validator:     validator,
		gateway:       gateway,
		extractor:     extractor,
		parser:        p,
		catalog:       cat,
		scorer:        scorer,
		prescriptions: prescriptions,
		audit:         auditor,
		files:         files,
		mentions:      mentions,
		outbox:        outbox,
		logger:        logger,
		metrics:       m,
	}
}

// UploadFiles validates the whole batch, then uploads each file and
// records its attachment row. The upload is staged: a metadata write
// failure after a successful store triggers a compensating delete, so no
// orphaned object survives. One file's failure does not stop its siblings.
func (s *Service) UploadFiles(ctx context.Context, prescriptionID uuid.UUID, uploads []UploadFile) ([]*model.FileAttachment, error) {
	infos := make([]fileval.FileInfo, len(uploads))
	for i, u := range uploads {
		infos[i] = fileval.FileInfo{Name: u.Name, Size: int64(len(u.Data)), MimeType: u.MimeType}
	}
	if result := s.validator.ValidateBatch(infos); !result.Valid {
		return nil, apperrors.BadRequest(strings.Join(result.Errors, "; "), nil)
	}

	var attachments []*model.FileAttachment
	var failures []string

	for _, u := range uploads {
		att, err := s.uploadOne(ctx, prescriptionID, u)
		if err != nil {
			s.logger.Error(err, "File upload failed",
				"prescription_id", prescriptionID.String(), "file", u.Name)
			failures = append(failures, u.Name)
			continue
		}
		attachments = append(attachments, att)
	}

	if len(attachments) == 0 {
		return nil, apperrors.Internal(fmt.Errorf("all %d uploads failed", len(uploads)))
	}

	s.publishFilesUploaded(ctx, prescriptionID, attachments, failures)
	return attachments, nil
}

func (s *Service) uploadOne(ctx context.Context, prescriptionID uuid.UUID, u UploadFile) (*model.FileAttachment, error) {
	path := fmt.Sprintf("prescriptions/%s/%s-%s", prescriptionID, uuid.NewString()[:8], u.Name)

	staged, err := storage.Stage(ctx, s.gateway, path, u.Data, u.MimeType)
	if err != nil {
		s.metrics.StorageOperations.WithLabelValues("put", "error").Inc()
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	s.metrics.StorageOperations.WithLabelValues("put", "success").Inc()

	att := &model.FileAttachment{
		PrescriptionID:   prescriptionID,
		FileName:         u.Name,
		StoragePath:      staged.Path,
		StorageURL:       staged.URL,
		FileSize:         int64(len(u.Data)),
		MimeType:         u.MimeType,
		ProcessingStatus: model.ProcessingStatusPending,
	}
	att.ID = uuid.New()
	now := time.Now()
	att.CreatedAt = now
	att.UpdatedAt = now

	if err := s.files.Create(ctx, att); err != nil {
		if rbErr := staged.Rollback(ctx); rbErr != nil {
			s.logger.Error(rbErr, "Compensating delete failed", "path", staged.Path)
		}
		return nil, fmt.Errorf("failed to record attachment: %w", err)
	}
	staged.Commit()
	return att, nil
}

// ProcessFiles runs OCR and parsing file by file in submission order, then
// merges the results. A failed file lowers the batch confidence but never
// aborts its siblings. Aggregate confidence is the mean over files that
// completed extraction; zero successes yield confidence 0.
func (s *Service) ProcessFiles(ctx context.Context, prescriptionID uuid.UUID, attachments []*model.FileAttachment, contents [][]byte, progress ProgressFunc) (*Aggregate, error) {
	if len(attachments) != len(contents) {
		return nil, apperrors.BadRequest("attachment and content counts differ", nil)
	}

	agg := &Aggregate{}
	byName := make(map[string]*model.MedicineMention)
	var confidenceSum float64
	var texts []string

	total := len(attachments)
	for i, att := range attachments {
		if progress != nil {
			progress("extracting", i+1, total)
		}

		result, err := s.extractor.ProcessAttachment(ctx, att, contents[i])
		if err != nil {
			s.logger.Error(err, "File extraction failed",
				"prescription_id", prescriptionID.String(), "attachment_id", att.ID.String())
			agg.Failed++
			continue
		}
		agg.Processed++
		if result.Degraded {
			agg.Degraded++
		}
		confidenceSum += result.Confidence
		if result.Text != "" {
			texts = append(texts, result.Text)
		}

		for _, m := range s.parser.Parse(result.Text) {
			mergeMention(byName, prescriptionID, m)
		}
	}
	agg.Text = strings.Join(texts, "\n\n")

	for _, m := range byName {
		agg.Mentions = append(agg.Mentions, m)
	}
	s.metrics.MentionsExtracted.Add(float64(len(agg.Mentions)))

	successes := agg.Processed
	if successes < 1 {
		successes = 1
	}
	agg.Confidence = confidenceSum / float64(successes)
	return agg, nil
}

// ProcessPrescription runs the whole pipeline for one prescription and
// applies the resulting status. Each prescription touches only its own
// rows, so distinct prescriptions may run concurrently without
// coordination.
func (s *Service) ProcessPrescription(ctx context.Context, p *model.Prescription, attachments []*model.FileAttachment, contents [][]byte, progress ProgressFunc) (*validation.Outcome, error) {
	timer := prometheus.NewTimer(s.metrics.PipelineDuration)
	defer timer.ObserveDuration()

	if err := s.prescriptions.MarkProcessing(ctx, p); err != nil {
		s.metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	agg, err := s.ProcessFiles(ctx, p.ID, attachments, contents, progress)
	if err != nil {
		s.metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if progress != nil {
		progress("cross_validating", 1, 1)
	}
	if err := s.catalog.CrossValidate(ctx, agg.Mentions); err != nil {
		s.metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := s.mentions.ReplaceForPrescription(ctx, p.ID, agg.Mentions); err != nil {
		s.metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to persist mentions: %w", err)
	}

	if progress != nil {
		progress("scoring", 1, 1)
	}
	current, err := s.files.ListForPrescription(ctx, p.ID)
	if err != nil {
		s.metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}

	outcome := s.scorer.Score(p, agg.Mentions, current)
	if err := s.audit.RecordChecks(ctx, p.ID, outcome.Results); err != nil {
		s.logger.Error(err, "Failed to record check audit entries",
			"prescription_id", p.ID.String())
	}
	if err := s.prescriptions.ApplyValidation(ctx, p, outcome.Results, outcome.Score, outcome.Status); err != nil {
		s.metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.PipelineRuns.WithLabelValues(outcome.Status).Inc()
	s.logger.Info("Prescription pipeline completed",
		"prescription_id", p.ID.String(),
		"files_processed", agg.Processed,
		"files_failed", agg.Failed,
		"mentions", len(agg.Mentions),
		"score", outcome.Score,
		"status", outcome.Status)
	return outcome, nil
}

// mergeMention deduplicates by normalized name, keeping the higher
// confidence. Merging is commutative, so processing order never changes
// the result.
func mergeMention(byName map[string]*model.MedicineMention, prescriptionID uuid.UUID, m parser.Mention) {
	key := normalizeName(m.Name)
	if key == "" {
		return
	}

	if existing, ok := byName[key]; ok {
		if m.Confidence > existing.Confidence {
			existing.Name = m.Name
			existing.Dosage = m.Dosage
			existing.Frequency = m.Frequency
			existing.Duration = m.Duration
			existing.Confidence = m.Confidence
		}
		return
	}

	mention := &model.MedicineMention{
		PrescriptionID:     prescriptionID,
		Name:               m.Name,
		Dosage:             m.Dosage,
		Frequency:          m.Frequency,
		Duration:           m.Duration,
		Confidence:         m.Confidence,
		VerificationStatus: model.VerificationStatusPending,
	}
	mention.ID = uuid.New()
	byName[key] = mention
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func (s *Service) publishFilesUploaded(ctx context.Context, prescriptionID uuid.UUID, attachments []*model.FileAttachment, failures []string) {
	names := make([]string, len(attachments))
	for i, att := range attachments {
		names[i] = att.FileName
	}
	payload, err := json.Marshal(map[string]interface{}{
		"prescription_id": prescriptionID,
		"files":           names,
		"failed":          failures,
		"occurred_at":     time.Now(),
	})
	if err != nil {
		return
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventPrescriptionFilesUploaded,
		Payload:   payload,
		Status:    string(model.OutboxStatusPending),
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		s.logger.Error(err, "Failed to record upload event",
			"prescription_id", prescriptionID.String())
	}
}
