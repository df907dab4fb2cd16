package models

import (
	"time"

	"github.com/google/uuid"
)

// Group lifecycle statuses.
const (
	StatusUnresolved = "unresolved"
	StatusResolved   = "resolved"
	StatusIgnored    = "ignored"
)

// Group is the issue aggregate: all events of a project sharing one
// fingerprint. Count tracks non-deleted events pointing at it; a resolved
// group reopens when a new matching event arrives, an ignored one does not.
type Group struct {
	ID           int64      `db:"id"            json:"id"`
	ProjectID    uuid.UUID  `db:"project_id"    json:"project_id"`
	Fingerprint  string     `db:"fingerprint"   json:"fingerprint"`
	Title        string     `db:"title"         json:"title"`
	Level        string     `db:"level"         json:"level"`
	Count        int64      `db:"count"         json:"count"`
	FirstSeen    time.Time  `db:"first_seen"    json:"first_seen"`
	LastSeen     time.Time  `db:"last_seen"     json:"last_seen"`
	Status       string     `db:"status"        json:"status"`
	ResolvedAt   *time.Time `db:"resolved_at"   json:"resolved_at,omitempty"`
	Assignee     string     `db:"assignee"      json:"assignee"`
	IsBookmarked bool       `db:"is_bookmarked" json:"is_bookmarked"`
}
