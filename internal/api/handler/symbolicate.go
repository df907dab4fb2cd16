package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/tracklight/tracklight/internal/api/response"
	"github.com/tracklight/tracklight/internal/store"
	"github.com/tracklight/tracklight/pkg/models"
)

// ReleaseResolver resolves the project/release pair a symbolication
// request names.
type ReleaseResolver interface {
	GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error)
	GetRelease(ctx context.Context, projectID uuid.UUID, version, environment string) (*models.Release, error)
}

// FrameResolver resolves frames against a release's artifacts.
type FrameResolver interface {
	Symbolicate(ctx context.Context, releaseID uuid.UUID, frames []models.Frame, stack string) ([]models.Frame, error)
}

// NewSymbolicateHandler handles POST /api/symbolicate.
func NewSymbolicateHandler(resolver ReleaseResolver, sym FrameResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Project     string         `json:"project"`
			Release     string         `json:"release"`
			Environment string         `json:"environment"`
			Frames      []models.Frame `json:"frames"`
			Stack       string         `json:"stack"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Project == "" || req.Release == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project and release are required", nil)
			return
		}
		environment := req.Environment
		if environment == "" {
			environment = "production"
		}

		project, err := resolver.GetProjectBySlug(r.Context(), req.Project)
		if err != nil {
			writeSymbolicateError(w, err, "Unknown project")
			return
		}
		release, err := resolver.GetRelease(r.Context(), project.ID, req.Release, environment)
		if err != nil {
			writeSymbolicateError(w, err, "Unknown release")
			return
		}

		frames, err := sym.Symbolicate(r.Context(), release.ID, req.Frames, req.Stack)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Symbolication failed", nil)
			return
		}
		if frames == nil {
			frames = []models.Frame{}
		}
		response.JSON(w, map[string]any{"frames": frames})
	}
}

func writeSymbolicateError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", notFoundMsg, nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}
