// Package api assembles the HTTP surface of the ingestion server.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/tracklight/tracklight/internal/api/middleware"
	"github.com/tracklight/tracklight/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler        http.HandlerFunc
	IngestBySlugHandler  http.HandlerFunc
	IngestByTokenHandler http.HandlerFunc
	SessionIngestHandler http.HandlerFunc
	SymbolicateHandler   http.HandlerFunc
	GroupActionHandler   http.HandlerFunc
	AlertSnoozeHandler   http.HandlerFunc
	AlertUnsnoozeHandler http.HandlerFunc
	ArtifactHandler      http.HandlerFunc
	WSHandler            http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/health", orNotImplemented(deps.HealthHandler))

	r.Post("/api/events/ingest/{projectSlug}", orNotImplemented(deps.IngestBySlugHandler))
	r.Post("/api/events/ingest/token/{token}", orNotImplemented(deps.IngestByTokenHandler))
	r.Post("/api/sessions/ingest/token/{token}", orNotImplemented(deps.SessionIngestHandler))

	r.Post("/api/symbolicate", orNotImplemented(deps.SymbolicateHandler))
	r.Post("/api/groups/{groupID}/{action}", orNotImplemented(deps.GroupActionHandler))
	r.Post("/api/alert-rules/{ruleID}/snooze", orNotImplemented(deps.AlertSnoozeHandler))
	r.Post("/api/alert-rules/{ruleID}/unsnooze", orNotImplemented(deps.AlertUnsnoozeHandler))
	r.Post("/api/releases/{releaseID}/artifacts", orNotImplemented(deps.ArtifactHandler))

	r.Get("/ws/events/{projectSlug}", orNotImplemented(deps.WSHandler))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
