package api

import (
	"github.com/starford/medrec/internal/access"
	"github.com/starford/medrec/internal/clinic"
	"github.com/starford/medrec/internal/index"
	"github.com/starford/medrec/internal/models"
)

// AddVisitRequest is the request body for recording a visit.
type AddVisitRequest struct {
	clinic.VisitInput
	Note clinic.NoteInput `json:"note"`
}

// AddVisitResponse is returned after a visit was recorded.
type AddVisitResponse struct {
	PatientID string        `json:"patient_id" example:"P1" validate:"required"`
	Visit     *models.Visit `json:"visit" validate:"required"`
	Note      models.Note   `json:"note" validate:"required"`
}

// PatientResponse is the retrieve view of one patient.
type PatientResponse = clinic.Summary

// CountResponse wraps a visit count.
type CountResponse struct {
	Date  string `json:"date" example:"2021-01-05" validate:"required"`
	Count int    `json:"count" example:"2"`
}

// NotesResponse wraps the notes of one patient on one date.
type NotesResponse struct {
	PatientID string        `json:"patient_id" example:"P1" validate:"required"`
	Date      string        `json:"date" example:"2021-01-05" validate:"required"`
	Notes     []models.Note `json:"notes" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// MeResponse describes the authenticated user.
type MeResponse struct {
	Username     string              `json:"username" example:"drsmith" validate:"required"`
	Role         string              `json:"role" example:"clinician" validate:"required"`
	Capabilities []access.Capability `json:"capabilities" validate:"required"`
}
