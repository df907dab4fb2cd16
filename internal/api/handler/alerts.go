package handler

import (
	"context"
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

const defaultSnoozeMinutes = 60

// AlertRuleStore is the persistence surface for snooze operations.
type AlertRuleStore interface {
	GetAlertRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error)
	SetAlertSuppressUntil(ctx context.Context, ruleID uuid.UUID, groupID int64, until *time.Time) error
}

// NewAlertSnoozeHandler handles POST /api/alert-rules/{ruleID}/snooze and
// /unsnooze. Snoozing sets suppress_until for the (rule, group) pair;
// unsnoozing clears it.
func NewAlertSnoozeHandler(st AlertRuleStore, snooze bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "rule id must be a UUID", nil)
			return
		}

		var req struct {
			Group   int64 `json:"group"`
			Minutes int   `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Group == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "group is required", nil)
			return
		}

		rule, err := st.GetAlertRule(r.Context(), ruleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RULE_NOT_FOUND", "Unknown alert rule", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		var until *time.Time
		if snooze {
			minutes := req.Minutes
			if minutes <= 0 {
				minutes = defaultSnoozeMinutes
			}
			t := time.Now().UTC().Add(time.Duration(minutes) * time.Minute)
			until = &t
		}

		if err := st.SetAlertSuppressUntil(r.Context(), rule.ID, req.Group, until); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		out := map[string]any{
			"rule":  rule.ID.String(),
			"group": req.Group,
		}
		if until != nil {
			out["suppress_until"] = until.Format(time.RFC3339)
		} else {
			out["suppress_until"] = nil
		}
		response.JSON(w, out)
	}
}
