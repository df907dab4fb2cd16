package models

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses.
const (
	SessionInit    = "init"
	SessionOK      = "ok"
	SessionErrored = "errored"
	SessionCrashed = "crashed"
	SessionExited  = "exited"
)

// Session tracks one client session's lifecycle, upserted by repeated
// reports for the same (project, session_id) pair. Last write wins for the
// mutable fields.
type Session struct {
	ID          uuid.UUID  `db:"id"          json:"id"`
	ProjectID   uuid.UUID  `db:"project_id"  json:"project_id"`
	ReleaseID   *uuid.UUID `db:"release_id"  json:"release_id,omitempty"`
	SessionID   string     `db:"session_id"  json:"session_id"`
	Environment string     `db:"environment" json:"environment"`
	Status      string     `db:"status"      json:"status"`
	User        string     `db:"user"        json:"user"`
	DurationMS  int        `db:"duration_ms" json:"duration_ms"`
	StartedAt   time.Time  `db:"started_at"  json:"started_at"`
	UpdatedAt   time.Time  `db:"updated_at"  json:"updated_at"`
}
