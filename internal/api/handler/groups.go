package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tracklight/tracklight/internal/api/response"
	"github.com/tracklight/tracklight/internal/store"
	"github.com/tracklight/tracklight/pkg/models"
)

// GroupStore is the persistence surface for group lifecycle operations.
type GroupStore interface {
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	UpdateGroupStatus(ctx context.Context, id int64, status string, resolvedAt *time.Time) (*models.Group, error)
	AssignGroup(ctx context.Context, id int64, assignee string) (*models.Group, error)
	SetGroupBookmark(ctx context.Context, id int64, bookmarked bool) error
}

type groupResponse struct {
	ID           int64   `json:"id"`
	Fingerprint  string  `json:"fingerprint"`
	Title        string  `json:"title"`
	Level        string  `json:"level"`
	Count        int64   `json:"count"`
	Status       string  `json:"status"`
	FirstSeen    string  `json:"first_seen"`
	LastSeen     string  `json:"last_seen"`
	ResolvedAt   *string `json:"resolved_at,omitempty"`
	Assignee     string  `json:"assignee,omitempty"`
	IsBookmarked bool    `json:"is_bookmarked"`
}

func newGroupResponse(g *models.Group) groupResponse {
	out := groupResponse{
		ID:           g.ID,
		Fingerprint:  g.Fingerprint,
		Title:        g.Title,
		Level:        g.Level,
		Count:        g.Count,
		Status:       g.Status,
		FirstSeen:    g.FirstSeen.UTC().Format(time.RFC3339),
		LastSeen:     g.LastSeen.UTC().Format(time.RFC3339),
		Assignee:     g.Assignee,
		IsBookmarked: g.IsBookmarked,
	}
	if g.ResolvedAt != nil {
		s := g.ResolvedAt.UTC().Format(time.RFC3339)
		out.ResolvedAt = &s
	}
	return out
}

// NewGroupActionHandler handles POST /api/groups/{groupID}/{action} for
// resolve, unresolve, ignore, assign, bookmark, and unbookmark.
func NewGroupActionHandler(st GroupStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "group id must be an integer", nil)
			return
		}

		var group *models.Group
		switch action := chi.URLParam(r, "action"); action {
		case "resolve":
			now := time.Now().UTC()
			group, err = st.UpdateGroupStatus(r.Context(), groupID, models.StatusResolved, &now)
		case "unresolve":
			group, err = st.UpdateGroupStatus(r.Context(), groupID, models.StatusUnresolved, nil)
		case "ignore":
			group, err = st.UpdateGroupStatus(r.Context(), groupID, models.StatusIgnored, nil)
		case "assign":
			var req struct {
				Assignee string `json:"assignee"`
			}
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil || req.Assignee == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "assignee is required", nil)
				return
			}
			group, err = st.AssignGroup(r.Context(), groupID, req.Assignee)
		case "bookmark", "unbookmark":
			if err = st.SetGroupBookmark(r.Context(), groupID, action == "bookmark"); err == nil {
				group, err = st.GetGroup(r.Context(), groupID)
			}
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown group action", nil)
			return
		}

		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "GROUP_NOT_FOUND", "Unknown group", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		response.JSON(w, newGroupResponse(group))
	}
}
