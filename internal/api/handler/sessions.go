package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tracklight/tracklight/internal/api/response"
	"github.com/tracklight/tracklight/internal/ingest"
	"github.com/tracklight/tracklight/pkg/models"
)

// SessionIngester is the session pipeline surface the handler depends on.
type SessionIngester interface {
	IngestSession(ctx context.Context, token string, raw json.RawMessage) (*ingest.SessionResult, error)
}

type sessionResponse struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	Environment string `json:"environment"`
	User        string `json:"user,omitempty"`
	DurationMS  int    `json:"duration_ms"`
	StartedAt   string `json:"started_at"`
	UpdatedAt   string `json:"updated_at"`
}

func newSessionResponse(s *models.Session) sessionResponse {
	return sessionResponse{
		ID:          s.ID.String(),
		SessionID:   s.SessionID,
		Status:      s.Status,
		Environment: s.Environment,
		User:        s.User,
		DurationMS:  s.DurationMS,
		StartedAt:   s.StartedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// NewSessionIngestHandler handles POST /api/sessions/ingest/token/{token}.
// First report of a session id returns 201, updates return 200.
func NewSessionIngestHandler(svc SessionIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		raw, ok := readBody(w, r)
		if !ok {
			return
		}
		res, err := svc.IngestSession(r.Context(), token, raw)
		if err != nil {
			writeIngestError(w, err)
			return
		}
		if res.Created {
			response.Created(w, newSessionResponse(res.Session))
			return
		}
		response.JSON(w, newSessionResponse(res.Session))
	}
}
