package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Validation log types.
const (
	ValidationTypeFormat     = "format"
	ValidationTypeContent    = "content"
	ValidationTypeMedicine   = "medicine"
	ValidationTypeRegulatory = "regulatory"
	ValidationTypeApproval   = "approval"
)

// Validation log severities.
const (
	SeverityNormal  = 1
	SeverityWarning = 2
	SeverityFailure = 3
)

// ValidationLogEntry is an append-only audit record. Entries are never
// mutated or deleted inside the retention window.
type ValidationLogEntry struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	PrescriptionID uuid.UUID       `db:"prescription_id" json:"prescription_id"`
	ValidationType string          `db:"validation_type" json:"validation_type"`
	Status         string          `db:"status" json:"status"`
	Details        json.RawMessage `db:"details" json:"details,omitempty"`
	Severity       int             `db:"severity" json:"severity"`
	Actor          string          `db:"actor" json:"actor,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}
