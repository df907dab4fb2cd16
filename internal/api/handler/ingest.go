// Package handler contains the HTTP handlers for the ingestion API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tracklight/tracklight/internal/api/response"
	"github.com/tracklight/tracklight/internal/ingest"
	"github.com/tracklight/tracklight/internal/store"
	"github.com/tracklight/tracklight/pkg/models"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// EventIngester is the ingest pipeline surface the handlers depend on.
type EventIngester interface {
	IngestBySlug(ctx context.Context, slug string, raw json.RawMessage) (*ingest.Result, error)
	IngestByToken(ctx context.Context, token string, raw json.RawMessage) (*ingest.Result, error)
}

// eventResponse is the serialized event returned on a successful ingest.
type eventResponse struct {
	ID           int64           `json:"id"`
	Project      string          `json:"project"`
	Group        int64           `json:"group"`
	GroupCreated bool            `json:"group_created"`
	Level        string          `json:"level"`
	Payload      json.RawMessage `json:"payload"`
	Environment  string          `json:"environment"`
	Release      *string         `json:"release,omitempty"`
	Tags         []string        `json:"tags"`
	Stack        string          `json:"stack,omitempty"`
	Symbolicated []models.Frame  `json:"symbolicated,omitempty"`
	ReceivedAt   string          `json:"received_at"`
}

func newEventResponse(res *ingest.Result) eventResponse {
	out := eventResponse{
		ID:           res.Event.ID,
		Project:      res.ProjectSlug,
		Group:        res.Group.ID,
		GroupCreated: res.GroupCreated,
		Level:        res.Event.Level,
		Payload:      res.Event.Payload,
		Environment:  res.Event.Environment,
		Tags:         res.Event.Tags,
		Stack:        res.Event.Stack,
		Symbolicated: res.Event.Symbolicated,
		ReceivedAt:   res.Event.ReceivedAt.UTC().Format(time.RFC3339),
	}
	if res.Event.ReleaseID != nil {
		id := res.Event.ReleaseID.String()
		out.Release = &id
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out
}

// NewIngestBySlugHandler handles POST /api/events/ingest/{projectSlug}.
func NewIngestBySlugHandler(svc EventIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "projectSlug")
		raw, ok := readBody(w, r)
		if !ok {
			return
		}
		res, err := svc.IngestBySlug(r.Context(), slug, raw)
		if err != nil {
			writeIngestError(w, err)
			return
		}
		response.Created(w, newEventResponse(res))
	}
}

// NewIngestByTokenHandler handles POST /api/events/ingest/token/{token}.
func NewIngestByTokenHandler(svc EventIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		raw, ok := readBody(w, r)
		if !ok {
			return
		}
		res, err := svc.IngestByToken(r.Context(), token, raw)
		if err != nil {
			writeIngestError(w, err)
			return
		}
		response.Created(w, newEventResponse(res))
	}
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read request body", nil)
		return nil, false
	}
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	return raw, true
}

func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "Unknown project or token", nil)
	case errors.Is(err, ingest.ErrRateLimited):
		response.Error(w, http.StatusTooManyRequests, "RATE_LIMITED",
			"Too many events for this project, retry after the current window", nil)
	case errors.Is(err, ingest.ErrValidation):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
