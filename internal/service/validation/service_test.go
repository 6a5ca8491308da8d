package validation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
)

func newTestService() *Service {
	return NewService(logger.NewLogger(nil), metrics.NewMetrics("test", "v"+uuid.NewString()[:8]))
}

func completePrescription() *model.Prescription {
	p := &model.Prescription{
		PatientName:        "R Mehta",
		DoctorName:         "Dr. A Sharma",
		DoctorRegistration: "MH-12345",
		PrescriptionDate:   time.Now().AddDate(0, 0, -7),
	}
	p.ID = uuid.New()
	p.SetExpiry()
	return p
}

func linkedMention(name string) *model.MedicineMention {
	id := uuid.New()
	m := &model.MedicineMention{Name: name, CatalogID: &id, Confidence: 0.9}
	m.ID = uuid.New()
	return m
}

func completedAttachment(confidence float64) *model.FileAttachment {
	att := &model.FileAttachment{
		ProcessingStatus: model.ProcessingStatusCompleted,
		OCRConfidence:    &confidence,
	}
	att.ID = uuid.New()
	return att
}

func TestScoreFullyValidPrescription(t *testing.T) {
	svc := newTestService()

	p := completePrescription()
	mentions := []*model.MedicineMention{linkedMention("Paracetamol")}
	attachments := []*model.FileAttachment{completedAttachment(0.9)}

	outcome := svc.Score(p, mentions, attachments)

	assert.InDelta(t, 1.0, outcome.Score, 1e-9)
	assert.Equal(t, model.PrescriptionStatusValidated, outcome.Status)
	assert.True(t, outcome.Results.Format.Passed)
	assert.True(t, outcome.Results.Regulatory.Compliant)
	assert.Equal(t, 1, outcome.Results.Medicine.MedicinesValidated)
}

func TestScoreBounds(t *testing.T) {
	svc := newTestService()

	empty := &model.Prescription{}
	empty.ID = uuid.New()
	outcome := svc.Score(empty, nil, nil)

	assert.GreaterOrEqual(t, outcome.Score, 0.0)
	assert.LessOrEqual(t, outcome.Score, 1.0)
	assert.Equal(t, model.PrescriptionStatusReviewRequired, outcome.Status)
}

func TestScoreDeterministic(t *testing.T) {
	svc := newTestService()

	p := completePrescription()
	mentions := []*model.MedicineMention{
		linkedMention("Paracetamol"),
		{Name: "Unknownium", Confidence: 0.5},
	}
	attachments := []*model.FileAttachment{completedAttachment(0.85)}

	first := svc.Score(p, mentions, attachments)
	second := svc.Score(p, mentions, attachments)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Status, second.Status)
}

func TestScoreThreshold(t *testing.T) {
	svc := newTestService()

	// All checks pass except regulatory: 0.25+0.25+0.25 = 0.75.
	p := completePrescription()
	p.DoctorRegistration = ""
	mentions := []*model.MedicineMention{linkedMention("Paracetamol")}

	outcome := svc.Score(p, mentions, nil)
	assert.InDelta(t, 0.75, outcome.Score, 1e-9)
	assert.Equal(t, model.PrescriptionStatusReviewRequired, outcome.Status)
}

func TestFormatCheckStaleDateWarns(t *testing.T) {
	svc := newTestService()

	p := completePrescription()
	p.PrescriptionDate = time.Now().AddDate(0, -8, 0)
	p.SetExpiry()
	assert.True(t, p.Expired(time.Now()))

	outcome := svc.Score(p, []*model.MedicineMention{linkedMention("Dolo")}, nil)

	// Stale date warns; it never fails the format check.
	assert.True(t, outcome.Results.Format.Passed)
	assert.NotEmpty(t, outcome.Results.Format.Warnings)
	assert.Equal(t, model.PrescriptionStatusValidated, outcome.Status)
}

func TestFormatCheckFutureDateFails(t *testing.T) {
	svc := newTestService()

	p := completePrescription()
	p.PrescriptionDate = time.Now().AddDate(0, 1, 0)

	outcome := svc.Score(p, []*model.MedicineMention{linkedMention("Dolo")}, nil)
	assert.False(t, outcome.Results.Format.Passed)
	assert.Equal(t, model.PrescriptionStatusReviewRequired, outcome.Status)
}

func TestMedicineScorePartial(t *testing.T) {
	svc := newTestService()

	p := completePrescription()
	mentions := []*model.MedicineMention{
		linkedMention("Paracetamol"),
		{Name: "Unknownium", Confidence: 0.5},
	}

	outcome := svc.Score(p, mentions, nil)
	require.Equal(t, 2, outcome.Results.Medicine.MedicinesFound)
	require.Equal(t, 1, outcome.Results.Medicine.MedicinesValidated)
	assert.Contains(t, outcome.Results.Medicine.Unrecognized, "Unknownium")

	// 0.25 + 0.25 + 0.25*0.5 + 0.25 = 0.88 rounded
	assert.InDelta(t, 0.88, outcome.Score, 1e-9)
	assert.Equal(t, model.PrescriptionStatusValidated, outcome.Status)
}

func TestReadabilityScoreAveragesOCRConfidence(t *testing.T) {
	svc := newTestService()

	p := completePrescription()
	attachments := []*model.FileAttachment{
		completedAttachment(0.9),
		completedAttachment(0.8),
		{ProcessingStatus: model.ProcessingStatusFailed},
	}

	outcome := svc.Score(p, []*model.MedicineMention{linkedMention("Dolo")}, attachments)
	assert.InDelta(t, 0.85, outcome.Results.Content.ReadabilityScore, 1e-9)
}
