package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tracklight/tracklight/internal/api/response"
	"github.com/tracklight/tracklight/internal/store"
	"github.com/tracklight/tracklight/pkg/models"
)

// ArtifactStore is the persistence surface for artifact uploads.
type ArtifactStore interface {
	GetReleaseByID(ctx context.Context, id uuid.UUID) (*models.Release, error)
	CreateArtifact(ctx context.Context, a *models.Artifact) error
}

// NewArtifactUploadHandler handles POST /api/releases/{releaseID}/artifacts.
// Artifacts carry source maps and function maps used by symbolication.
func NewArtifactUploadHandler(st ArtifactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		releaseID, err := uuid.Parse(chi.URLParam(r, "releaseID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "release id must be a UUID", nil)
			return
		}

		var req struct {
			Name        string `json:"name"`
			Content     string `json:"content"`
			ContentType string `json:"content_type"`
			FileName    string `json:"file_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" || req.Content == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name and content are required", nil)
			return
		}

		release, err := st.GetReleaseByID(r.Context(), releaseID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RELEASE_NOT_FOUND", "Unknown release", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		sum := sha256.Sum256([]byte(req.Content))

		artifact := &models.Artifact{
			ReleaseID:   release.ID,
			Name:        req.Name,
			Content:     req.Content,
			ContentType: contentType,
			FileName:    req.FileName,
			Checksum:    hex.EncodeToString(sum[:]),
		}
		if err := st.CreateArtifact(r.Context(), artifact); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.Created(w, map[string]any{
			"id":           artifact.ID.String(),
			"release":      release.ID.String(),
			"name":         artifact.Name,
			"content_type": artifact.ContentType,
			"file_name":    artifact.FileName,
			"checksum":     artifact.Checksum,
			"created_at":   artifact.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}
