package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is the top-level ingestion scope. The ingest token is an opaque
// capability credential: anyone holding it may submit events and sessions.
type Project struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	Name        string    `db:"name"         json:"name"`
	Slug        string    `db:"slug"         json:"slug"`
	IngestToken string    `db:"ingest_token" json:"ingest_token"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}

// Release is a (project, version, environment) triple, created lazily the
// first time an event or session references it.
type Release struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	ProjectID    uuid.UUID  `db:"project_id"    json:"project_id"`
	Version      string     `db:"version"       json:"version"`
	Environment  string     `db:"environment"   json:"environment"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	DateReleased *time.Time `db:"date_released" json:"date_released,omitempty"`
}

// Artifact is a file attached to a release, typically a source map or a
// symbol map consumed by the symbolication engine.
type Artifact struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	ReleaseID   uuid.UUID `db:"release_id"   json:"release_id"`
	Name        string    `db:"name"         json:"name"`
	Content     string    `db:"content"      json:"content"`
	ContentType string    `db:"content_type" json:"content_type"`
	FileName    string    `db:"file_name"    json:"file_name"`
	Checksum    string    `db:"checksum"     json:"checksum"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
