package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medixcare/pharmacy-api/internal/model"
	apperrors "github.com/medixcare/pharmacy-api/pkg/errors"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
)

type fakePrescriptionRepo struct {
	prescriptions map[uuid.UUID]*model.Prescription
	entries       []*model.ValidationLogEntry
	events        []*model.OutboxEvent
}

func newFakePrescriptionRepo() *fakePrescriptionRepo {
	return &fakePrescriptionRepo{prescriptions: make(map[uuid.UUID]*model.Prescription)}
}

func (r *fakePrescriptionRepo) Create(_ context.Context, p *model.Prescription) error {
	r.prescriptions[p.ID] = p
	return nil
}

func (r *fakePrescriptionRepo) Get(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	p, ok := r.prescriptions[id]
	if !ok {
		return nil, apperrors.NotFound("prescription", nil)
	}
	return p, nil
}

func (r *fakePrescriptionRepo) Update(_ context.Context, p *model.Prescription) error {
	r.prescriptions[p.ID] = p
	return nil
}

func (r *fakePrescriptionRepo) UpdateStatus(_ context.Context, p *model.Prescription, entry *model.ValidationLogEntry, event *model.OutboxEvent) error {
	r.prescriptions[p.ID] = p
	r.entries = append(r.entries, entry)
	r.events = append(r.events, event)
	return nil
}

func (r *fakePrescriptionRepo) List(context.Context, *model.PrescriptionFilters) ([]*model.Prescription, int64, error) {
	return nil, 0, nil
}

type fakeLogRepo struct {
	entries []*model.ValidationLogEntry
}

func (r *fakeLogRepo) Create(_ context.Context, entry *model.ValidationLogEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeLogRepo) ListForPrescription(context.Context, uuid.UUID) ([]*model.ValidationLogEntry, error) {
	return r.entries, nil
}

func (r *fakeLogRepo) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type recordingNotifier struct {
	reviews    int
	rejections int
}

func (n *recordingNotifier) NotifyReviewRequired(context.Context, *model.Prescription) error {
	n.reviews++
	return nil
}

func (n *recordingNotifier) NotifyRejected(context.Context, *model.Prescription, []string) error {
	n.rejections++
	return nil
}

func newTestService(repo *fakePrescriptionRepo, notifier Notifier) *Service {
	return NewService(repo, &fakeLogRepo{}, notifier,
		logger.NewLogger(nil), metrics.NewMetrics("test", "p"+uuid.NewString()[:8]))
}

func createTestPrescription(t *testing.T, svc *Service) *model.Prescription {
	t.Helper()
	p, err := svc.Create(context.Background(), &CreateInput{
		PatientName:      "R Mehta",
		DoctorName:       "Dr. A Sharma",
		PrescriptionDate: time.Now().AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	return p
}

func TestCreate(t *testing.T) {
	repo := newFakePrescriptionRepo()
	svc := newTestService(repo, nil)

	p := createTestPrescription(t, svc)

	assert.Equal(t, model.PrescriptionStatusPending, p.Status)
	assert.NotEmpty(t, p.PrescriptionNumber)
	assert.Equal(t, 1, p.PriorityLevel)
	assert.Equal(t, p.PrescriptionDate.Add(model.ValidityWindow), p.ExpiryDate)
	assert.False(t, p.CreatedAt.IsZero())
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestFullLifecycle(t *testing.T) {
	repo := newFakePrescriptionRepo()
	svc := newTestService(repo, nil)

	p := createTestPrescription(t, svc)
	require.NoError(t, svc.MarkProcessing(context.Background(), p))
	assert.Equal(t, model.PrescriptionStatusProcessing, p.Status)

	results := &model.ValidationResults{Format: model.FormatCheck{Passed: true}}
	require.NoError(t, svc.ApplyValidation(context.Background(), p, results, 0.85, model.PrescriptionStatusValidated))
	assert.Equal(t, model.PrescriptionStatusValidated, p.Status)
	require.NotNil(t, p.ProcessedAt)

	fulfilled, err := svc.Fulfill(context.Background(), p.ID, "pharmacist-1")
	require.NoError(t, err)
	assert.Equal(t, model.PrescriptionStatusFulfilled, fulfilled.Status)

	// One audit entry and one outbox event per transition.
	assert.Len(t, repo.entries, 3)
	assert.Len(t, repo.events, 3)
	for _, e := range repo.events {
		assert.Equal(t, model.EventPrescriptionStatusChanged, e.EventType)
		assert.False(t, e.CreatedAt.IsZero())
		assert.False(t, e.UpdatedAt.IsZero())
	}
}

func TestIllegalTransitions(t *testing.T) {
	repo := newFakePrescriptionRepo()
	svc := newTestService(repo, nil)

	p := createTestPrescription(t, svc)

	// pending cannot jump straight to validated
	err := svc.ApplyValidation(context.Background(), p,
		&model.ValidationResults{}, 0.9, model.PrescriptionStatusValidated)
	require.Error(t, err)
	assert.Equal(t, model.PrescriptionStatusPending, p.Status)

	// fulfilled is terminal
	require.NoError(t, svc.MarkProcessing(context.Background(), p))
	require.NoError(t, svc.ApplyValidation(context.Background(), p,
		&model.ValidationResults{}, 0.9, model.PrescriptionStatusValidated))
	_, err = svc.Fulfill(context.Background(), p.ID, "pharmacist-1")
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), p.ID, []string{"late"}, "pharmacist-1")
	require.Error(t, err)
}

func TestRejectRequiresReasonsAndActor(t *testing.T) {
	repo := newFakePrescriptionRepo()
	svc := newTestService(repo, nil)
	p := createTestPrescription(t, svc)

	_, err := svc.Reject(context.Background(), p.ID, nil, "pharmacist-1")
	require.Error(t, err)

	_, err = svc.Reject(context.Background(), p.ID, []string{"  "}, "pharmacist-1")
	require.Error(t, err)

	_, err = svc.Reject(context.Background(), p.ID, []string{"illegible"}, "")
	require.Error(t, err)

	rejected, err := svc.Reject(context.Background(), p.ID, []string{"illegible"}, "pharmacist-1")
	require.NoError(t, err)
	assert.Equal(t, model.PrescriptionStatusRejected, rejected.Status)
	assert.Equal(t, []string{"illegible"}, rejected.RejectionReasons)
	require.NotNil(t, rejected.ProcessedAt)
}

func TestReviewRequiredPathAndApproval(t *testing.T) {
	repo := newFakePrescriptionRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, notifier)

	p := createTestPrescription(t, svc)
	require.NoError(t, svc.MarkProcessing(context.Background(), p))
	require.NoError(t, svc.ApplyValidation(context.Background(), p,
		&model.ValidationResults{}, 0.6, model.PrescriptionStatusReviewRequired))

	assert.Equal(t, 1, notifier.reviews)
	assert.Nil(t, p.ProcessedAt)

	approved, err := svc.Approve(context.Background(), p.ID, "pharmacist-2")
	require.NoError(t, err)
	assert.Equal(t, model.PrescriptionStatusValidated, approved.Status)
}

func TestRejectionNotifies(t *testing.T) {
	repo := newFakePrescriptionRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, notifier)

	p := createTestPrescription(t, svc)
	_, err := svc.Reject(context.Background(), p.ID, []string{"expired"}, "pharmacist-1")
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.rejections)
}

func TestApplyValidationRejectsBadOutcomeStatus(t *testing.T) {
	repo := newFakePrescriptionRepo()
	svc := newTestService(repo, nil)
	p := createTestPrescription(t, svc)

	err := svc.ApplyValidation(context.Background(), p,
		&model.ValidationResults{}, 0.9, model.PrescriptionStatusRejected)
	require.Error(t, err)
}
