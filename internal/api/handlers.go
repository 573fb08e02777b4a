package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/medrec/internal/access"
	"github.com/starford/medrec/internal/clinic"
	"github.com/starford/medrec/internal/index"
)

// Handler holds API route handlers.
type Handler struct {
	svc *clinic.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *clinic.Service) *Handler {
	return &Handler{svc: svc}
}

func currentUser(r *http.Request) *access.User {
	u, _ := UserFrom(r.Context())
	return u
}

// Me handles GET /api/me.
//
//	@Summary		Describe the authenticated user
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	MeResponse
//	@Security		BasicAuth
//	@Router			/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	writeJSON(w, http.StatusOK, MeResponse{
		Username:     u.Username,
		Role:         u.Role,
		Capabilities: u.Capabilities(),
	})
}

// GetPatient handles GET /api/patients/{id}.
//
//	@Summary		Retrieve a patient's full record
//	@Tags			patients
//	@Produce		json
//	@Param			id	path		string	true	"Patient ID"
//	@Success		200	{object}	PatientResponse
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BasicAuth
//	@Router			/patients/{id} [get]
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Retrieve(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "retrieve patient", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// AddVisit handles POST /api/patients/{id}/visits.
//
//	@Summary		Record a visit with one note
//	@Tags			patients
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Patient ID"
//	@Param			body	body		AddVisitRequest	true	"Visit and note"
//	@Success		201		{object}	AddVisitResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/patients/{id}/visits [post]
func (h *Handler) AddVisit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AddVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	pid := chi.URLParam(r, "id")
	v, err := h.svc.Add(r.Context(), currentUser(r), pid, req.VisitInput, req.Note)
	if err != nil {
		writeError(w, "add visit", err)
		return
	}
	writeJSON(w, http.StatusCreated, AddVisitResponse{PatientID: pid, Visit: v, Note: v.Notes[0]})
}

// DeletePatient handles DELETE /api/patients/{id}.
//
//	@Summary		Remove a patient and every visit
//	@Tags			patients
//	@Param			id	path	string	true	"Patient ID"
//	@Success		204	"Patient removed"
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BasicAuth
//	@Router			/patients/{id} [delete]
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remove(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, "remove patient", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotesOn handles GET /api/patients/{id}/notes?date=YYYY-MM-DD.
//
//	@Summary		Notes of a patient on a date
//	@Tags			notes
//	@Produce		json
//	@Param			id		path		string	true	"Patient ID"
//	@Param			date	query		string	true	"Date (YYYY-MM-DD)"
//	@Success		200		{object}	NotesResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/patients/{id}/notes [get]
func (h *Handler) NotesOn(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "id")
	date := r.URL.Query().Get("date")
	notes, err := h.svc.NotesOn(r.Context(), currentUser(r), pid, date)
	if err != nil {
		writeError(w, "view notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NotesResponse{PatientID: pid, Date: date, Notes: notes})
}

// CountVisits handles GET /api/visits/count?date=YYYY-MM-DD.
//
//	@Summary		Count visits on a date
//	@Tags			visits
//	@Produce		json
//	@Param			date	query		string	true	"Date (YYYY-MM-DD)"
//	@Success		200		{object}	CountResponse
//	@Failure		400		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/visits/count [get]
func (h *Handler) CountVisits(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	n, err := h.svc.CountVisits(r.Context(), currentUser(r), date)
	if err != nil {
		writeError(w, "count visits", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Date: date, Count: n})
}

// SearchNotes handles GET /api/notes/search.
//
//	@Summary		Text search across notes
//	@Tags			notes
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/notes/search [get]
func (h *Handler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchNotes(r.Context(), currentUser(r), q, limit)
	if err != nil {
		writeError(w, "search notes", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Stats handles GET /api/stats.
//
//	@Summary		Management statistics report
//	@Tags			stats
//	@Produce		json
//	@Success		200	{object}	stats.Report
//	@Failure		403	{object}	errResponse
//	@Security		BasicAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Stats(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, "generate statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
