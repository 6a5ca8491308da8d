package prescription

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medixcare/pharmacy-api/internal/handler"
	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
	"github.com/medixcare/pharmacy-api/internal/service/intake"
	prescriptionService "github.com/medixcare/pharmacy-api/internal/service/prescription"
	apperrors "github.com/medixcare/pharmacy-api/pkg/errors"
	"github.com/medixcare/pharmacy-api/pkg/storage"
)

const signedURLTTL = 15 * time.Minute

type Handler struct {
	service  *prescriptionService.Service
	intake   *intake.Service
	gateway  storage.Gateway
	files    repository.FileAttachmentRepository
	mentions repository.MedicineMentionRepository
}

func NewHandler(service *prescriptionService.Service, intakeSvc *intake.Service, gateway storage.Gateway, files repository.FileAttachmentRepository, mentions repository.MedicineMentionRepository) *Handler {
	return &Handler{
		service:  service,
		intake:   intakeSvc,
		gateway:  gateway,
		files:    files,
		mentions: mentions,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	prescriptions := r.Group("/prescriptions")
	{
		prescriptions.POST("", h.CreatePrescription)
		prescriptions.GET("", h.ListPrescriptions)
		prescriptions.GET("/:id", h.GetPrescription)
		prescriptions.POST("/:id/files", h.UploadAndProcess)
		prescriptions.GET("/:id/files", h.ListFiles)
		prescriptions.GET("/:id/files/:fileID/url", h.GetFileURL)
		prescriptions.DELETE("/:id/files/:fileID", h.DeleteFile)
		prescriptions.GET("/:id/medicines", h.ListMedicines)
		prescriptions.GET("/:id/history", h.GetValidationHistory)
		prescriptions.POST("/:id/approve", h.ApprovePrescription)
		prescriptions.POST("/:id/reject", h.RejectPrescription)
		prescriptions.POST("/:id/fulfill", h.FulfillPrescription)
	}
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	var req prescriptionService.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	p, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(p))
}

func (h *Handler) GetPrescription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}

	p, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

type listQuery struct {
	Status        string `form:"status"`
	DoctorName    string `form:"doctor_name"`
	PatientName   string `form:"patient_name"`
	PriorityLevel int    `form:"priority_level"`
	StartDate     string `form:"start_date"`
	EndDate       string `form:"end_date"`
	Search        string `form:"search"`
	Page          int    `form:"page"`
	PageSize      int    `form:"page_size"`
	SortField     string `form:"sort_field"`
	SortDir       string `form:"sort_dir"`
}

func (h *Handler) ListPrescriptions(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	filters := &model.PrescriptionFilters{
		Status:        q.Status,
		DoctorName:    q.DoctorName,
		PatientName:   q.PatientName,
		PriorityLevel: q.PriorityLevel,
		SearchTerm:    q.Search,
		Pagination:    model.Pagination{Page: q.Page, PageSize: q.PageSize},
		Sort:          model.SortOrder{Field: q.SortField, Dir: q.SortDir},
	}
	if q.StartDate != "" {
		t, err := time.Parse(time.RFC3339, q.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid start_date"))
			return
		}
		filters.StartDate = t
	}
	if q.EndDate != "" {
		t, err := time.Parse(time.RFC3339, q.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid end_date"))
			return
		}
		filters.EndDate = t
	}

	items, total, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewListResponse(items, total))
}

// UploadAndProcess takes a multipart batch of prescription files, stores
// them, and runs the full validation pipeline synchronously. The response
// carries the scoring outcome.
func (h *Handler) UploadAndProcess(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}

	p, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid multipart form"))
		return
	}

	var uploads []intake.UploadFile
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unreadable file "+fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unreadable file "+fh.Filename))
			return
		}
		uploads = append(uploads, intake.UploadFile{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	attachments, err := h.intake.UploadFiles(c.Request.Context(), id, uploads)
	if err != nil {
		abortWithError(c, err)
		return
	}

	contents := make([][]byte, len(attachments))
	for i, att := range attachments {
		for _, u := range uploads {
			if u.Name == att.FileName {
				contents[i] = u.Data
				break
			}
		}
	}

	outcome, err := h.intake.ProcessPrescription(c.Request.Context(), p, attachments, contents, nil)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"prescription": p,
		"score":        outcome.Score,
		"status":       outcome.Status,
		"results":      outcome.Results,
	}))
}

func (h *Handler) ListFiles(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}

	files, err := h.files.ListForPrescription(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(files))
}

// GetFileURL returns a time-limited retrieval URL for an attachment.
// Prescription files never leave object storage through the API itself.
func (h *Handler) GetFileURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}
	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid file ID"))
		return
	}

	att, err := h.files.Get(c.Request.Context(), fileID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if att.PrescriptionID != id {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("file not found for prescription"))
		return
	}

	url, err := h.gateway.SignedURL(c.Request.Context(), att.StoragePath, signedURLTTL)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"url":        url,
		"expires_at": time.Now().Add(signedURLTTL),
	}))
}

func (h *Handler) DeleteFile(c *gin.Context) {
	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid file ID"))
		return
	}

	if err := h.files.Delete(c.Request.Context(), fileID); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) ListMedicines(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}

	mentions, err := h.mentions.ListForPrescription(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(mentions))
}

func (h *Handler) GetValidationHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}

	history, err := h.service.ValidationHistory(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(history))
}

type actorRequest struct {
	Actor string `json:"actor" binding:"required"`
}

type rejectRequest struct {
	Actor   string   `json:"actor" binding:"required"`
	Reasons []string `json:"reasons" binding:"required"`
}

func (h *Handler) ApprovePrescription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	p, err := h.service.Approve(c.Request.Context(), id, req.Actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) RejectPrescription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	p, err := h.service.Reject(c.Request.Context(), id, req.Reasons, req.Actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) FulfillPrescription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid prescription ID"))
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	p, err := h.service.Fulfill(c.Request.Context(), id, req.Actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

// abortWithError maps application errors to HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrNotFound:
			c.JSON(http.StatusNotFound, handler.NewErrorResponse(appErr.Message))
		case apperrors.ErrBadRequest:
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(appErr.Message))
		case apperrors.ErrConflict:
			c.JSON(http.StatusConflict, handler.NewErrorResponse(appErr.Message))
		default:
			c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(appErr.Message))
		}
		return
	}
	c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
}
