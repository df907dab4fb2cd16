package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tracklight/tracklight/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the system-of-record interface. All Postgres operations go
// through here; implementations must tolerate concurrent callers.
type Store interface {
	Ping(ctx context.Context) error

	CreateProject(ctx context.Context, name, slug string) (*models.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error)
	GetProjectByToken(ctx context.Context, token string) (*models.Project, error)

	GetOrCreateRelease(ctx context.Context, projectID uuid.UUID, version, environment string) (*models.Release, error)
	GetRelease(ctx context.Context, projectID uuid.UUID, version, environment string) (*models.Release, error)
	GetReleaseByID(ctx context.Context, id uuid.UUID) (*models.Release, error)

	CreateArtifact(ctx context.Context, artifact *models.Artifact) error
	ListJSONArtifacts(ctx context.Context, releaseID uuid.UUID) ([]*models.Artifact, error)

	// UpsertGroup atomically creates the (project, fingerprint) group with
	// count 1 or applies the repeat-occurrence update: count+1, last_seen
	// and level refresh, and resolved groups reopened with resolved_at
	// cleared. Ignored groups keep their status. The returned flag reports
	// whether the row was created.
	UpsertGroup(ctx context.Context, projectID uuid.UUID, fingerprint, title, level string, seenAt time.Time) (*models.Group, bool, error)
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	UpdateGroupStatus(ctx context.Context, id int64, status string, resolvedAt *time.Time) (*models.Group, error)
	AssignGroup(ctx context.Context, id int64, assignee string) (*models.Group, error)
	SetGroupBookmark(ctx context.Context, id int64, bookmarked bool) error
	CountGroupEventsSince(ctx context.Context, groupID int64, since time.Time) (int, error)

	CreateEvent(ctx context.Context, event *models.Event) error
	AttachSymbolicated(ctx context.Context, eventID int64, frames []models.Frame) error

	GetAlertRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error)
	ListActiveAlertRules(ctx context.Context, projectID uuid.UUID) ([]*models.AlertRule, error)
	ListAlertTargets(ctx context.Context, ruleID uuid.UUID) ([]*models.AlertTarget, error)
	GetOrCreateAlertState(ctx context.Context, ruleID uuid.UUID, groupID int64) (*models.AlertState, error)
	SetAlertLastTriggered(ctx context.Context, ruleID uuid.UUID, groupID int64, at time.Time) error
	SetAlertSuppressUntil(ctx context.Context, ruleID uuid.UUID, groupID int64, until *time.Time) error

	// UpsertSession get-or-creates by (project, session_id) and overwrites
	// the mutable fields on repeat reports. The flag reports creation.
	UpsertSession(ctx context.Context, session *models.Session) (*models.Session, bool, error)
}
