package validation

import (
	"math"
	"time"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
)

// Check weights. They must sum to 1.0 so the final score stays in [0, 1].
const (
	formatWeight     = 0.25
	contentWeight    = 0.25
	medicineWeight   = 0.25
	regulatoryWeight = 0.25

	// ApprovalThreshold is the minimum weighted score at which a
	// prescription is validated without pharmacist review.
	ApprovalThreshold = 0.80
)

// Outcome carries the full check record, the weighted score and the
// status the prescription should move to.
type Outcome struct {
	Results *model.ValidationResults
	Score   float64
	Status  string
}

type Service struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(logger *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{logger: logger, metrics: m}
}

// Score runs the four checks against the prescription and its extracted
// data and produces the weighted outcome. The checks never depend on each
// other: a failed format check does not stop medicine scoring.
func (s *Service) Score(p *model.Prescription, mentions []*model.MedicineMention, attachments []*model.FileAttachment) *Outcome {
	now := time.Now()

	results := &model.ValidationResults{
		Format:     checkFormat(p, now),
		Content:    checkContent(p, mentions, attachments),
		Medicine:   checkMedicines(mentions),
		Regulatory: checkRegulatory(p),
	}

	score := formatWeight*formatScore(results.Format) +
		contentWeight*contentScore(results.Content) +
		medicineWeight*medicineScore(results.Medicine) +
		regulatoryWeight*regulatoryScore(results.Regulatory)
	score = math.Round(score*100) / 100

	status := model.PrescriptionStatusReviewRequired
	if score >= ApprovalThreshold {
		status = model.PrescriptionStatusValidated
	}

	s.metrics.ValidationScores.Observe(score)
	s.logger.Info("Prescription scored",
		"prescription_id", p.ID.String(), "score", score, "status", status)

	return &Outcome{Results: results, Score: score, Status: status}
}

func formatScore(c model.FormatCheck) float64 {
	if c.Passed {
		return 1.0
	}
	return 0.0
}

// contentScore is the average of the four presence booleans. Readability
// is recorded for reviewers but does not move the score.
func contentScore(c model.ContentCheck) float64 {
	var present float64
	for _, ok := range []bool{c.DoctorInfoPresent, c.PatientInfoPresent, c.DatePresent, c.MedicinesPresent} {
		if ok {
			present++
		}
	}
	return present / 4
}

func medicineScore(c model.MedicineCheck) float64 {
	found := c.MedicinesFound
	if found < 1 {
		found = 1
	}
	return float64(c.MedicinesValidated) / float64(found)
}

func regulatoryScore(c model.RegulatoryCheck) float64 {
	if c.Compliant {
		return 1.0
	}
	return 0.0
}
