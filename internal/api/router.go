package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/medrec/internal/clinic"
)

// NewRouter creates a chi router with all API routes mounted behind HTTP
// Basic auth. sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *clinic.Service, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(svc))

	r.Get("/me", h.Me)

	// Patients.
	r.Get("/patients/{id}", h.GetPatient)
	r.Post("/patients/{id}/visits", h.AddVisit)
	r.Delete("/patients/{id}", h.DeletePatient)
	r.Get("/patients/{id}/notes", h.NotesOn)

	// Queries.
	r.Get("/visits/count", h.CountVisits)
	r.Get("/notes/search", h.SearchNotes)
	r.Get("/stats", h.Stats)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
