package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Prescription statuses. A prescription is never deleted, only moved
// through these states by the prescription service.
const (
	PrescriptionStatusPending        = "pending"
	PrescriptionStatusProcessing     = "processing"
	PrescriptionStatusValidated      = "validated"
	PrescriptionStatusReviewRequired = "review_required"
	PrescriptionStatusRejected       = "rejected"
	PrescriptionStatusFulfilled      = "fulfilled"
)

// ValidityWindow is how long a prescription stays usable after it was written.
const ValidityWindow = 6 * 30 * 24 * time.Hour

type Prescription struct {
	Base
	PrescriptionNumber string          `db:"prescription_number" json:"prescription_number"`
	PatientName        string          `db:"patient_name" json:"patient_name"`
	PatientAge         string          `db:"patient_age" json:"patient_age,omitempty"`
	DoctorName         string          `db:"doctor_name" json:"doctor_name"`
	DoctorRegistration string          `db:"doctor_registration" json:"doctor_registration,omitempty"`
	Diagnosis          string          `db:"diagnosis" json:"diagnosis,omitempty"`
	PrescriptionDate   time.Time       `db:"prescription_date" json:"prescription_date"`
	ExpiryDate         time.Time       `db:"expiry_date" json:"expiry_date"`
	Status             string          `db:"status" json:"status"`
	ValidationJSON     json.RawMessage `db:"validation_results" json:"-"`
	ValidationScore    float64         `db:"validation_score" json:"validation_score"`
	RejectionJSON      json.RawMessage `db:"rejection_reasons" json:"-"`
	PriorityLevel      int             `db:"priority_level" json:"priority_level"`
	ProcessedAt        *time.Time      `db:"processed_at" json:"processed_at,omitempty"`

	ValidationResults *ValidationResults `json:"validation_results,omitempty"`
	RejectionReasons  []string           `json:"rejection_reasons,omitempty"`
}

// SetExpiry derives the expiry date from the prescription date.
func (p *Prescription) SetExpiry() {
	p.ExpiryDate = p.PrescriptionDate.Add(ValidityWindow)
}

func (p *Prescription) Expired(now time.Time) bool {
	return now.After(p.ExpiryDate)
}

// ValidationResults is the structured record of the four pipeline checks,
// persisted as a JSON column and recomputed wholesale on every scoring run.
type ValidationResults struct {
	Format     FormatCheck     `json:"format"`
	Content    ContentCheck    `json:"content"`
	Medicine   MedicineCheck   `json:"medicine"`
	Regulatory RegulatoryCheck `json:"regulatory"`
}

type FormatCheck struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type ContentCheck struct {
	DoctorInfoPresent  bool    `json:"doctor_info_present"`
	PatientInfoPresent bool    `json:"patient_info_present"`
	DatePresent        bool    `json:"date_present"`
	MedicinesPresent   bool    `json:"medicines_present"`
	ReadabilityScore   float64 `json:"readability_score"`
}

type MedicineCheck struct {
	MedicinesFound     int      `json:"medicines_found"`
	MedicinesValidated int      `json:"medicines_validated"`
	Unrecognized       []string `json:"unrecognized,omitempty"`
}

type RegulatoryCheck struct {
	Compliant       bool     `json:"compliant"`
	Issues          []string `json:"issues,omitempty"`
	RequirementsMet []string `json:"requirements_met,omitempty"`
}

// PrescriptionFilters narrows prescription listings.
type PrescriptionFilters struct {
	Status        string     `json:"status" form:"status"`
	DoctorName    string     `json:"doctor_name" form:"doctor_name"`
	PatientName   string     `json:"patient_name" form:"patient_name"`
	PriorityLevel int        `json:"priority_level" form:"priority_level"`
	StartDate     time.Time  `json:"start_date" form:"start_date"`
	EndDate       time.Time  `json:"end_date" form:"end_date"`
	SearchTerm    string     `json:"search_term" form:"search_term"`
	Pagination    Pagination `json:"pagination"`
	Sort          SortOrder  `json:"sort"`
}

// StatusChangedEvent is the outbox payload written on every transition.
type StatusChangedEvent struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	OldStatus      string    `json:"old_status"`
	NewStatus      string    `json:"new_status"`
	Actor          string    `json:"actor,omitempty"`
	Score          float64   `json:"score,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
