package model

import (
	"github.com/google/uuid"
)

// Mention verification statuses.
const (
	VerificationStatusPending  = "pending"
	VerificationStatusVerified = "verified"
	VerificationStatusRejected = "rejected"
)

// VerificationThreshold is the confidence below which a mention needs a
// pharmacist to look at it.
const VerificationThreshold = 0.9

// MedicineMention is one structured medicine entry extracted from
// prescription text. Confidence is a heuristic trust estimate in [0,1],
// not a probability.
type MedicineMention struct {
	Base
	PrescriptionID       uuid.UUID  `db:"prescription_id" json:"prescription_id"`
	CatalogID            *uuid.UUID `db:"catalog_id" json:"catalog_id,omitempty"`
	Name                 string     `db:"name" json:"name"`
	GenericName          string     `db:"generic_name" json:"generic_name,omitempty"`
	Dosage               string     `db:"dosage" json:"dosage"`
	Frequency            string     `db:"frequency" json:"frequency"`
	Duration             string     `db:"duration" json:"duration,omitempty"`
	Confidence           float64    `db:"confidence" json:"confidence"`
	VerificationStatus   string     `db:"verification_status" json:"verification_status"`
	RequiresVerification bool       `db:"requires_verification" json:"requires_verification"`
}

// CatalogMedicine is one entry of the external medicine catalog.
type CatalogMedicine struct {
	Base
	Name        string `db:"name" json:"name"`
	GenericName string `db:"generic_name" json:"generic_name"`
	Brand       string `db:"brand" json:"brand,omitempty"`
	Strength    string `db:"strength" json:"strength,omitempty"`
	Form        string `db:"form" json:"form,omitempty"`
}
