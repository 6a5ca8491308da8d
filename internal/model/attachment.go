package model

import (
	"github.com/google/uuid"
)

// File attachment processing statuses.
const (
	ProcessingStatusPending    = "pending"
	ProcessingStatusProcessing = "processing"
	ProcessingStatusCompleted  = "completed"
	ProcessingStatusFailed     = "failed"
)

// OCR text provenance.
const (
	OCRSourceProvider = "provider"
	OCRSourceFallback = "fallback"
)

// FileAttachment is one uploaded prescription image or PDF. OCR text and
// confidence are written exactly once, on the transition into completed.
type FileAttachment struct {
	Base
	PrescriptionID   uuid.UUID `db:"prescription_id" json:"prescription_id"`
	FileName         string    `db:"file_name" json:"file_name"`
	StoragePath      string    `db:"storage_path" json:"storage_path"`
	StorageURL       string    `db:"storage_url" json:"storage_url"`
	FileSize         int64     `db:"file_size" json:"file_size"`
	MimeType         string    `db:"mime_type" json:"mime_type"`
	ProcessingStatus string    `db:"processing_status" json:"processing_status"`
	OCRText          *string   `db:"ocr_text" json:"ocr_text,omitempty"`
	OCRConfidence    *float64  `db:"ocr_confidence" json:"ocr_confidence,omitempty"`
	OCRSource        *string   `db:"ocr_source" json:"ocr_source,omitempty"`
}
