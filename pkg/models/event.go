package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Frame is one stack frame, either as submitted by the client or after
// symbolication. The Orig* fields are only set once a source map resolved
// the generated position back to original source.
type Frame struct {
	Function   string `json:"function,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	OrigFile   string `json:"orig_file,omitempty"`
	OrigLine   int    `json:"orig_line,omitempty"`
	OrigColumn int    `json:"orig_column,omitempty"`
}

// Event is an immutable ingested fact. The only post-creation mutation is
// attaching symbolicated frames, at most once, right after insert.
type Event struct {
	ID            int64           `db:"id"            json:"id"`
	ProjectID     uuid.UUID       `db:"project_id"    json:"project_id"`
	GroupID       *int64          `db:"group_id"      json:"group_id,omitempty"`
	ReleaseID     *uuid.UUID      `db:"release_id"    json:"release_id,omitempty"`
	Message       string          `db:"message"       json:"message"`
	Level         string          `db:"level"         json:"level"`
	Payload       json.RawMessage `db:"payload"       json:"payload,omitempty"`
	Environment   string          `db:"environment"   json:"environment"`
	Tags          []string        `db:"tags"          json:"tags"`
	Stack         string          `db:"stack"         json:"stack,omitempty"`
	Symbolicated  []Frame         `db:"symbolicated"  json:"symbolicated,omitempty"`
	ReceivedAt    time.Time       `db:"received_at"   json:"received_at"`
}
