package intake

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/service/audit"
	"github.com/medixcare/pharmacy-api/internal/service/catalog"
	"github.com/medixcare/pharmacy-api/internal/service/fileval"
	"github.com/medixcare/pharmacy-api/internal/service/ocr"
	"github.com/medixcare/pharmacy-api/internal/service/parser"
	prescriptionService "github.com/medixcare/pharmacy-api/internal/service/prescription"
	"github.com/medixcare/pharmacy-api/internal/service/validation"
	"github.com/medixcare/pharmacy-api/pkg/logger"
	"github.com/medixcare/pharmacy-api/pkg/metrics"
)

// fakeGateway records puts and deletes and can fail specific paths.
type fakeGateway struct {
	objects map[string][]byte
	deletes []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: make(map[string][]byte)}
}

func (g *fakeGateway) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	g.objects[path] = data
	return "https://cdn.test/" + path, nil
}

func (g *fakeGateway) Delete(_ context.Context, path string) error {
	g.deletes = append(g.deletes, path)
	delete(g.objects, path)
	return nil
}

func (g *fakeGateway) SignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://signed.test/" + path, nil
}

// scriptedProvider returns queued extraction results in call order.
type scriptedProvider struct {
	texts []string
	errs  []error
	calls int
}

func (p *scriptedProvider) Extract(context.Context, []byte, string) (*ocr.ProviderResult, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	var text string
	if i < len(p.texts) {
		text = p.texts[i]
	}
	return &ocr.ProviderResult{Text: text}, nil
}

type fakeAttachmentRepo struct {
	attachments map[uuid.UUID]*model.FileAttachment
	createErr   error
	failOnID    uuid.UUID
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{attachments: make(map[uuid.UUID]*model.FileAttachment)}
}

func (r *fakeAttachmentRepo) Create(_ context.Context, att *model.FileAttachment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.attachments[att.ID] = att
	return nil
}

func (r *fakeAttachmentRepo) Get(_ context.Context, id uuid.UUID) (*model.FileAttachment, error) {
	return r.attachments[id], nil
}

func (r *fakeAttachmentRepo) ListForPrescription(_ context.Context, prescriptionID uuid.UUID) ([]*model.FileAttachment, error) {
	var out []*model.FileAttachment
	for _, att := range r.attachments {
		if att.PrescriptionID == prescriptionID {
			out = append(out, att)
		}
	}
	return out, nil
}

func (r *fakeAttachmentRepo) MarkProcessing(_ context.Context, id uuid.UUID) error {
	if att, ok := r.attachments[id]; ok {
		att.ProcessingStatus = model.ProcessingStatusProcessing
	}
	return nil
}

func (r *fakeAttachmentRepo) MarkCompleted(_ context.Context, id uuid.UUID, text string, confidence float64, source string) error {
	if id == r.failOnID {
		return errors.New("write failed")
	}
	if att, ok := r.attachments[id]; ok {
		att.ProcessingStatus = model.ProcessingStatusCompleted
		att.OCRText = &text
		att.OCRConfidence = &confidence
		att.OCRSource = &source
	}
	return nil
}

func (r *fakeAttachmentRepo) MarkFailed(_ context.Context, id uuid.UUID) error {
	if att, ok := r.attachments[id]; ok {
		att.ProcessingStatus = model.ProcessingStatusFailed
	}
	return nil
}

func (r *fakeAttachmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.attachments, id)
	return nil
}

type fakeMentionRepo struct {
	stored []*model.MedicineMention
}

func (r *fakeMentionRepo) ReplaceForPrescription(_ context.Context, _ uuid.UUID, mentions []*model.MedicineMention) error {
	r.stored = mentions
	return nil
}

func (r *fakeMentionRepo) ListForPrescription(context.Context, uuid.UUID) ([]*model.MedicineMention, error) {
	return r.stored, nil
}

func (r *fakeMentionRepo) UpdateVerification(context.Context, uuid.UUID, string) error { return nil }

type fakeLogRepo struct {
	entries []*model.ValidationLogEntry
}

func (r *fakeLogRepo) Create(_ context.Context, e *model.ValidationLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeLogRepo) ListForPrescription(context.Context, uuid.UUID) ([]*model.ValidationLogEntry, error) {
	return r.entries, nil
}

func (r *fakeLogRepo) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeOutboxRepo struct {
	events []*model.OutboxEvent
}

func (r *fakeOutboxRepo) Create(_ context.Context, e *model.OutboxEvent) error {
	r.events = append(r.events, e)
	return nil
}

func (r *fakeOutboxRepo) GetPendingEventsWithLock(context.Context, int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) UpdateStatusTx(context.Context, *sql.Tx, uuid.UUID, string, *string, *time.Time) error {
	return nil
}

func (r *fakeOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakePrescriptionRepo struct {
	prescriptions map[uuid.UUID]*model.Prescription
}

func newFakePrescriptionRepo() *fakePrescriptionRepo {
	return &fakePrescriptionRepo{prescriptions: make(map[uuid.UUID]*model.Prescription)}
}

func (r *fakePrescriptionRepo) Create(_ context.Context, p *model.Prescription) error {
	r.prescriptions[p.ID] = p
	return nil
}

func (r *fakePrescriptionRepo) Get(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	return r.prescriptions[id], nil
}

func (r *fakePrescriptionRepo) Update(_ context.Context, p *model.Prescription) error {
	r.prescriptions[p.ID] = p
	return nil
}

func (r *fakePrescriptionRepo) UpdateStatus(_ context.Context, p *model.Prescription, _ *model.ValidationLogEntry, _ *model.OutboxEvent) error {
	r.prescriptions[p.ID] = p
	return nil
}

func (r *fakePrescriptionRepo) List(context.Context, *model.PrescriptionFilters) ([]*model.Prescription, int64, error) {
	return nil, 0, nil
}

type fakeCatalogRepo struct {
	entries []*model.CatalogMedicine
}

func (r *fakeCatalogRepo) Search(context.Context, string) ([]*model.CatalogMedicine, error) {
	return r.entries, nil
}

func (r *fakeCatalogRepo) Get(context.Context, uuid.UUID) (*model.CatalogMedicine, error) {
	return nil, nil
}

type testHarness struct {
	svc         *Service
	gateway     *fakeGateway
	attachments *fakeAttachmentRepo
	mentions    *fakeMentionRepo
	outbox      *fakeOutboxRepo
	repo        *fakePrescriptionRepo
}

func newHarness(provider ocr.Provider, catalogEntries []*model.CatalogMedicine) *testHarness {
	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("test", "i"+uuid.NewString()[:8])

	gateway := newFakeGateway()
	attachments := newFakeAttachmentRepo()
	mentions := &fakeMentionRepo{}
	outbox := &fakeOutboxRepo{}
	repo := newFakePrescriptionRepo()
	logRepo := &fakeLogRepo{}

	prescriptionSvc := prescriptionService.NewService(repo, logRepo, nil, appLogger, appMetrics)
	svc := NewService(
		fileval.NewService(fileval.Config{}),
		gateway,
		ocr.NewService(provider, attachments, appLogger, appMetrics),
		parser.NewService(nil),
		catalog.NewService(&fakeCatalogRepo{entries: catalogEntries}, appLogger),
		validation.NewService(appLogger, appMetrics),
		prescriptionSvc,
		audit.NewService(logRepo, appLogger),
		attachments,
		mentions,
		outbox,
		appLogger,
		appMetrics,
	)

	return &testHarness{
		svc:         svc,
		gateway:     gateway,
		attachments: attachments,
		mentions:    mentions,
		outbox:      outbox,
		repo:        repo,
	}
}

func pendingPrescription(h *testHarness) *model.Prescription {
	p := &model.Prescription{
		PrescriptionNumber: "RX-TEST-1",
		PatientName:        "R Mehta",
		DoctorName:         "Dr. A Sharma",
		DoctorRegistration: "MH-12345",
		PrescriptionDate:   time.Now().AddDate(0, 0, -3),
		Status:             model.PrescriptionStatusPending,
	}
	p.ID = uuid.New()
	p.SetExpiry()
	h.repo.prescriptions[p.ID] = p
	return p
}

func upload(name string) UploadFile {
	return UploadFile{Name: name, MimeType: "image/jpeg", Data: make([]byte, 2048)}
}

func TestUploadFiles(t *testing.T) {
	h := newHarness(&scriptedProvider{}, nil)
	id := uuid.New()

	attachments, err := h.svc.UploadFiles(context.Background(), id,
		[]UploadFile{upload("front.jpg"), upload("back.jpg")})
	require.NoError(t, err)
	require.Len(t, attachments, 2)

	assert.Len(t, h.gateway.objects, 2)
	assert.Empty(t, h.gateway.deletes)
	for _, att := range attachments {
		assert.Equal(t, model.ProcessingStatusPending, att.ProcessingStatus)
		assert.True(t, strings.HasPrefix(att.StoragePath, "prescriptions/"+id.String()+"/"))
		assert.False(t, att.CreatedAt.IsZero())
	}

	// Upload event recorded for downstream consumers.
	require.Len(t, h.outbox.events, 1)
	assert.Equal(t, model.EventPrescriptionFilesUploaded, h.outbox.events[0].EventType)
}

func TestUploadFilesRejectsInvalidBatch(t *testing.T) {
	h := newHarness(&scriptedProvider{}, nil)

	_, err := h.svc.UploadFiles(context.Background(), uuid.New(), []UploadFile{
		{Name: "rx.tiff", MimeType: "image/tiff", Data: make([]byte, 2048)},
	})
	require.Error(t, err)

	// No side effects before validation passes.
	assert.Empty(t, h.gateway.objects)
	assert.Empty(t, h.attachments.attachments)
}

func TestUploadCompensatingDelete(t *testing.T) {
	h := newHarness(&scriptedProvider{}, nil)
	h.attachments.createErr = errors.New("db down")

	_, err := h.svc.UploadFiles(context.Background(), uuid.New(),
		[]UploadFile{upload("front.jpg")})
	require.Error(t, err)

	// The stored object was rolled back; nothing orphaned.
	assert.Empty(t, h.gateway.objects)
	assert.Len(t, h.gateway.deletes, 1)
}

func attachFiles(t *testing.T, h *testHarness, p *model.Prescription, names ...string) ([]*model.FileAttachment, [][]byte) {
	t.Helper()
	var uploads []UploadFile
	for _, name := range names {
		uploads = append(uploads, upload(name))
	}
	attachments, err := h.svc.UploadFiles(context.Background(), p.ID, uploads)
	require.NoError(t, err)
	contents := make([][]byte, len(attachments))
	for i := range attachments {
		contents[i] = uploads[i].Data
	}
	return attachments, contents
}

func TestProcessFilesAggregation(t *testing.T) {
	// Two successes with derived confidences 0.9 and 0.8, one persistence
	// failure. The mean runs over successes only.
	longText := strings.Repeat("x", 150)
	provider := &scriptedProvider{texts: []string{longText, "short", "ignored"}}
	h := newHarness(provider, nil)

	p := pendingPrescription(h)
	attachments, contents := attachFiles(t, h, p, "a.jpg", "b.jpg", "c.jpg")
	h.attachments.failOnID = attachments[2].ID

	agg, err := h.svc.ProcessFiles(context.Background(), p.ID, attachments, contents, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, agg.Processed)
	assert.Equal(t, 1, agg.Failed)
	assert.InDelta(t, 0.85, agg.Confidence, 1e-9)
	assert.Equal(t, longText+"\n\n"+"short", agg.Text)
}

func TestProcessFilesZeroSuccesses(t *testing.T) {
	h := newHarness(&scriptedProvider{}, nil)

	p := pendingPrescription(h)
	attachments, contents := attachFiles(t, h, p, "a.jpg")
	h.attachments.failOnID = attachments[0].ID

	agg, err := h.svc.ProcessFiles(context.Background(), p.ID, attachments, contents, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, agg.Processed)
	assert.InDelta(t, 0.0, agg.Confidence, 1e-9)
}

func TestProcessFilesDeduplication(t *testing.T) {
	rx := "Rx:\n1. Tab. Paracetamol 500mg twice daily for 5 days"
	freeform := "patient continues paracetamol as before"
	provider := &scriptedProvider{texts: []string{rx, freeform}}
	h := newHarness(provider, nil)

	p := pendingPrescription(h)
	attachments, contents := attachFiles(t, h, p, "a.jpg", "b.jpg")

	agg, err := h.svc.ProcessFiles(context.Background(), p.ID, attachments, contents, nil)
	require.NoError(t, err)

	// Both files mention paracetamol; the structured parse wins on
	// confidence and only one mention survives.
	require.Len(t, agg.Mentions, 1)
	assert.Equal(t, "Paracetamol", agg.Mentions[0].Name)
	assert.Equal(t, "500mg", agg.Mentions[0].Dosage)
	assert.Equal(t, 1.0, agg.Mentions[0].Confidence)
}

func TestProcessFilesDegradedOCRKeepsSiblings(t *testing.T) {
	provider := &scriptedProvider{
		texts: []string{"", "Rx:\n1. Tab. Dolo 650mg bd for 3 days"},
		errs:  []error{errors.New("ocr backend down"), nil},
	}
	h := newHarness(provider, nil)

	p := pendingPrescription(h)
	attachments, contents := attachFiles(t, h, p, "a.jpg", "b.jpg")

	agg, err := h.svc.ProcessFiles(context.Background(), p.ID, attachments, contents, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, agg.Processed)
	assert.Equal(t, 1, agg.Degraded)
	require.Len(t, agg.Mentions, 1)
	assert.Equal(t, "Dolo", agg.Mentions[0].Name)
}

func TestProcessPrescriptionEndToEnd(t *testing.T) {
	rx := "Prescription\nDoctor advised:\nRx:\n1. Tab. Paracetamol 500mg twice daily for 5 days\nfor the patient"
	provider := &scriptedProvider{texts: []string{rx}}
	entry := &model.CatalogMedicine{Name: "Paracetamol", GenericName: "Acetaminophen"}
	entry.ID = uuid.New()
	h := newHarness(provider, []*model.CatalogMedicine{entry})

	p := pendingPrescription(h)
	attachments, contents := attachFiles(t, h, p, "rx.jpg")

	var stages []string
	outcome, err := h.svc.ProcessPrescription(context.Background(), p, attachments, contents,
		func(stage string, _, _ int) { stages = append(stages, stage) })
	require.NoError(t, err)

	assert.Equal(t, model.PrescriptionStatusValidated, outcome.Status)
	assert.GreaterOrEqual(t, outcome.Score, 0.8)
	assert.Equal(t, model.PrescriptionStatusValidated, p.Status)

	// Mentions persisted with catalog linkage.
	require.Len(t, h.mentions.stored, 1)
	assert.Equal(t, "Acetaminophen", h.mentions.stored[0].GenericName)
	require.NotNil(t, h.mentions.stored[0].CatalogID)

	assert.Equal(t, []string{"extracting", "cross_validating", "scoring"}, stages)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "paracetamol", normalizeName("  Paracetamol "))
	assert.Equal(t, "folic acid", normalizeName("Folic   ACID"))
	assert.Equal(t, "", normalizeName("   "))
}
