package validation

import (
	"fmt"
	"time"

	"github.com/medixcare/pharmacy-api/internal/model"
)

// checkFormat verifies required descriptive fields and the prescription
// date. A stale prescription warns rather than errors: age alone never
// blocks validation, it lowers nothing but flags review.
func checkFormat(p *model.Prescription, now time.Time) model.FormatCheck {
	var check model.FormatCheck

	if p.DoctorName == "" {
		check.Errors = append(check.Errors, "doctor name is required")
	}
	if p.PatientName == "" {
		check.Errors = append(check.Errors, "patient name is required")
	}
	if p.PrescriptionDate.IsZero() {
		check.Errors = append(check.Errors, "prescription date is required")
	} else {
		if p.PrescriptionDate.After(now) {
			check.Errors = append(check.Errors, "prescription date is in the future")
		}
		if now.Sub(p.PrescriptionDate) > model.ValidityWindow {
			check.Warnings = append(check.Warnings,
				fmt.Sprintf("prescription is older than the %d-day validity window",
					int(model.ValidityWindow.Hours()/24)))
		}
	}

	check.Passed = len(check.Errors) == 0
	return check
}

// checkContent records which pieces of content the intake produced.
// Readability is the average OCR confidence over completed attachments,
// the only readability signal the pipeline has.
func checkContent(p *model.Prescription, mentions []*model.MedicineMention, attachments []*model.FileAttachment) model.ContentCheck {
	check := model.ContentCheck{
		DoctorInfoPresent:  p.DoctorName != "",
		PatientInfoPresent: p.PatientName != "",
		DatePresent:        !p.PrescriptionDate.IsZero(),
		MedicinesPresent:   len(mentions) > 0,
	}

	var sum float64
	var count int
	for _, att := range attachments {
		if att.ProcessingStatus == model.ProcessingStatusCompleted && att.OCRConfidence != nil {
			sum += *att.OCRConfidence
			count++
		}
	}
	if count > 0 {
		check.ReadabilityScore = sum / float64(count)
	}
	return check
}

// checkMedicines counts how many mentions the catalog recognized.
func checkMedicines(mentions []*model.MedicineMention) model.MedicineCheck {
	check := model.MedicineCheck{
		MedicinesFound: len(mentions),
	}
	for _, m := range mentions {
		if m.CatalogID != nil {
			check.MedicinesValidated++
		} else {
			check.Unrecognized = append(check.Unrecognized, m.Name)
		}
	}
	return check
}

// checkRegulatory verifies the compliance requirements a pharmacist must
// see satisfied before fulfillment.
func checkRegulatory(p *model.Prescription) model.RegulatoryCheck {
	var check model.RegulatoryCheck

	if p.DoctorRegistration == "" {
		check.Issues = append(check.Issues, "doctor registration number is missing")
	} else {
		check.RequirementsMet = append(check.RequirementsMet, "doctor registration number present")
	}
	if !p.PrescriptionDate.IsZero() {
		check.RequirementsMet = append(check.RequirementsMet, "prescription date present")
	} else {
		check.Issues = append(check.Issues, "prescription date is missing")
	}

	check.Compliant = len(check.Issues) == 0
	return check
}
