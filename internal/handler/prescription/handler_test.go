package prescription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medixcare/pharmacy-api/internal/model"
	apperrors "github.com/medixcare/pharmacy-api/pkg/errors"
	"github.com/medixcare/pharmacy-api/pkg/storage"
)

type fakeFileRepo struct {
	attachments map[uuid.UUID]*model.FileAttachment
}

func (r *fakeFileRepo) Create(_ context.Context, att *model.FileAttachment) error {
	r.attachments[att.ID] = att
	return nil
}

func (r *fakeFileRepo) Get(_ context.Context, id uuid.UUID) (*model.FileAttachment, error) {
	att, ok := r.attachments[id]
	if !ok {
		return nil, apperrors.NotFound("file attachment", nil)
	}
	return att, nil
}

func (r *fakeFileRepo) ListForPrescription(context.Context, uuid.UUID) ([]*model.FileAttachment, error) {
	return nil, nil
}
func (r *fakeFileRepo) MarkProcessing(context.Context, uuid.UUID) error { return nil }
func (r *fakeFileRepo) MarkCompleted(context.Context, uuid.UUID, string, float64, string) error {
	return nil
}
func (r *fakeFileRepo) MarkFailed(context.Context, uuid.UUID) error { return nil }
func (r *fakeFileRepo) Delete(context.Context, uuid.UUID) error     { return nil }

func newURLTestRouter(t *testing.T, files *fakeFileRepo, gateway storage.Gateway) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil, gateway, files, nil)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestGetFileURL(t *testing.T) {
	gateway, err := storage.NewLocalGateway(t.TempDir(), "http://files.local")
	require.NoError(t, err)

	prescriptionID := uuid.New()
	path := "prescriptions/" + prescriptionID.String() + "/front.jpg"
	_, err = gateway.Put(context.Background(), path, []byte("scan"), "image/jpeg")
	require.NoError(t, err)

	att := &model.FileAttachment{
		PrescriptionID: prescriptionID,
		FileName:       "front.jpg",
		StoragePath:    path,
	}
	att.ID = uuid.New()
	files := &fakeFileRepo{attachments: map[uuid.UUID]*model.FileAttachment{att.ID: att}}
	r := newURLTestRouter(t, files, gateway)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/prescriptions/"+prescriptionID.String()+"/files/"+att.ID.String()+"/url", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			URL       string    `json:"url"`
			ExpiresAt time.Time `json:"expires_at"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Data.URL, path)
	assert.Contains(t, resp.Data.URL, "expires=")
	assert.WithinDuration(t, time.Now().Add(signedURLTTL), resp.Data.ExpiresAt, time.Minute)
}

func TestGetFileURLWrongPrescription(t *testing.T) {
	gateway, err := storage.NewLocalGateway(t.TempDir(), "http://files.local")
	require.NoError(t, err)

	att := &model.FileAttachment{
		PrescriptionID: uuid.New(),
		StoragePath:    "prescriptions/other/front.jpg",
	}
	att.ID = uuid.New()
	files := &fakeFileRepo{attachments: map[uuid.UUID]*model.FileAttachment{att.ID: att}}
	r := newURLTestRouter(t, files, gateway)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/prescriptions/"+uuid.NewString()+"/files/"+att.ID.String()+"/url", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetFileURLUnknownFile(t *testing.T) {
	gateway, err := storage.NewLocalGateway(t.TempDir(), "http://files.local")
	require.NoError(t, err)

	files := &fakeFileRepo{attachments: map[uuid.UUID]*model.FileAttachment{}}
	r := newURLTestRouter(t, files, gateway)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/prescriptions/"+uuid.NewString()+"/files/"+uuid.NewString()+"/url", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
