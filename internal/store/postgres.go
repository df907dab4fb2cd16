package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tracklight/tracklight/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Projects ---

func (s *PostgresStore) CreateProject(ctx context.Context, name, slug string) (*models.Project, error) {
	token, err := newIngestToken()
	if err != nil {
		return nil, fmt.Errorf("generate ingest token: %w", err)
	}
	var p models.Project
	err = s.pool.QueryRow(ctx,
		`INSERT INTO projects (name, slug, ingest_token) VALUES ($1, $2, $3)
		 RETURNING id, name, slug, ingest_token, created_at`,
		name, slug, token,
	).Scan(&p.ID, &p.Name, &p.Slug, &p.IngestToken, &p.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	return s.getProject(ctx, `slug = $1`, slug)
}

func (s *PostgresStore) GetProjectByToken(ctx context.Context, token string) (*models.Project, error) {
	return s.getProject(ctx, `ingest_token = $1`, token)
}

func (s *PostgresStore) getProject(ctx context.Context, where string, arg any) (*models.Project, error) {
	var p models.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, slug, ingest_token, created_at FROM projects WHERE `+where, arg,
	).Scan(&p.ID, &p.Name, &p.Slug, &p.IngestToken, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// --- Releases ---

func (s *PostgresStore) GetOrCreateRelease(ctx context.Context, projectID uuid.UUID, version, environment string) (*models.Release, error) {
	var r models.Release
	// DO UPDATE instead of DO NOTHING so the row always comes back in one
	// round trip, also for the loser of a concurrent create race.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO releases (project_id, version, environment) VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, version, environment) DO UPDATE SET version = EXCLUDED.version
		 RETURNING id, project_id, version, environment, created_at, date_released`,
		projectID, version, environment,
	).Scan(&r.ID, &r.ProjectID, &r.Version, &r.Environment, &r.CreatedAt, &r.DateReleased)
	if err != nil {
		return nil, fmt.Errorf("get or create release: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) GetRelease(ctx context.Context, projectID uuid.UUID, version, environment string) (*models.Release, error) {
	var r models.Release
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, version, environment, created_at, date_released
		 FROM releases WHERE project_id = $1 AND version = $2 AND environment = $3`,
		projectID, version, environment,
	).Scan(&r.ID, &r.ProjectID, &r.Version, &r.Environment, &r.CreatedAt, &r.DateReleased)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get release: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) GetReleaseByID(ctx context.Context, id uuid.UUID) (*models.Release, error) {
	var r models.Release
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, version, environment, created_at, date_released
		 FROM releases WHERE id = $1`, id,
	).Scan(&r.ID, &r.ProjectID, &r.Version, &r.Environment, &r.CreatedAt, &r.DateReleased)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get release by id: %w", err)
	}
	return &r, nil
}

// --- Artifacts ---

func (s *PostgresStore) CreateArtifact(ctx context.Context, a *models.Artifact) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO artifacts (release_id, name, content, content_type, file_name, checksum)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		a.ReleaseID, a.Name, a.Content, a.ContentType, a.FileName, a.Checksum,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListJSONArtifacts(ctx context.Context, releaseID uuid.UUID) ([]*models.Artifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, release_id, name, content, content_type, file_name, checksum, created_at
		 FROM artifacts WHERE release_id = $1 AND content_type ILIKE '%json%'
		 ORDER BY created_at DESC`, releaseID)
	if err != nil {
		return nil, fmt.Errorf("list json artifacts: %w", err)
	}
	defer rows.Close()

	var arts []*models.Artifact
	for rows.Next() {
		var a models.Artifact
		if err := rows.Scan(&a.ID, &a.ReleaseID, &a.Name, &a.Content, &a.ContentType,
			&a.FileName, &a.Checksum, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		arts = append(arts, &a)
	}
	return arts, rows.Err()
}

// --- Groups ---

const groupColumns = `id, project_id, fingerprint, title, level, count, first_seen, last_seen,
	 status, resolved_at, assignee, is_bookmarked`

func (s *PostgresStore) UpsertGroup(ctx context.Context, projectID uuid.UUID, fingerprint, title, level string, seenAt time.Time) (*models.Group, bool, error) {
	// Single atomic statement: two events racing on a new fingerprint both
	// land here, one takes the insert path and one the update path, and no
	// increment is lost. (xmax = 0) distinguishes insert from update.
	var g models.Group
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO groups (project_id, fingerprint, title, level, count, first_seen, last_seen)
		 VALUES ($1, $2, $3, $4, 1, $5, $5)
		 ON CONFLICT (project_id, fingerprint) DO UPDATE SET
		   count = groups.count + 1,
		   last_seen = EXCLUDED.last_seen,
		   level = EXCLUDED.level,
		   status = CASE WHEN groups.status = 'resolved' THEN 'unresolved' ELSE groups.status END,
		   resolved_at = CASE WHEN groups.status = 'resolved' THEN NULL ELSE groups.resolved_at END
		 RETURNING `+groupColumns+`, (xmax = 0)`,
		projectID, fingerprint, title, level, seenAt,
	).Scan(&g.ID, &g.ProjectID, &g.Fingerprint, &g.Title, &g.Level, &g.Count,
		&g.FirstSeen, &g.LastSeen, &g.Status, &g.ResolvedAt, &g.Assignee, &g.IsBookmarked,
		&created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert group: %w", err)
	}
	return &g, created, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	var g models.Group
	err := s.pool.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.ProjectID, &g.Fingerprint, &g.Title, &g.Level, &g.Count,
		&g.FirstSeen, &g.LastSeen, &g.Status, &g.ResolvedAt, &g.Assignee, &g.IsBookmarked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) UpdateGroupStatus(ctx context.Context, id int64, status string, resolvedAt *time.Time) (*models.Group, error) {
	var g models.Group
	err := s.pool.QueryRow(ctx,
		`UPDATE groups SET status = $2, resolved_at = $3 WHERE id = $1
		 RETURNING `+groupColumns,
		id, status, resolvedAt,
	).Scan(&g.ID, &g.ProjectID, &g.Fingerprint, &g.Title, &g.Level, &g.Count,
		&g.FirstSeen, &g.LastSeen, &g.Status, &g.ResolvedAt, &g.Assignee, &g.IsBookmarked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update group status: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) AssignGroup(ctx context.Context, id int64, assignee string) (*models.Group, error) {
	var g models.Group
	err := s.pool.QueryRow(ctx,
		`UPDATE groups SET assignee = $2 WHERE id = $1 RETURNING `+groupColumns,
		id, assignee,
	).Scan(&g.ID, &g.ProjectID, &g.Fingerprint, &g.Title, &g.Level, &g.Count,
		&g.FirstSeen, &g.LastSeen, &g.Status, &g.ResolvedAt, &g.Assignee, &g.IsBookmarked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("assign group: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) SetGroupBookmark(ctx context.Context, id int64, bookmarked bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE groups SET is_bookmarked = $2 WHERE id = $1`, id, bookmarked)
	if err != nil {
		return fmt.Errorf("set group bookmark: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountGroupEventsSince(ctx context.Context, groupID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM events WHERE group_id = $1 AND received_at >= $2`,
		groupID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count group events: %w", err)
	}
	return count, nil
}

// --- Events ---

func (s *PostgresStore) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.Payload == nil {
		e.Payload = json.RawMessage(`{}`)
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (project_id, group_id, release_id, message, level, payload, environment, tags, stack)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, received_at`,
		e.ProjectID, e.GroupID, e.ReleaseID, e.Message, e.Level, e.Payload, e.Environment, e.Tags, e.Stack,
	).Scan(&e.ID, &e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *PostgresStore) AttachSymbolicated(ctx context.Context, eventID int64, frames []models.Frame) error {
	encoded, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("encode symbolicated frames: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET symbolicated = $2 WHERE id = $1 AND symbolicated IS NULL`,
		eventID, encoded)
	if err != nil {
		return fmt.Errorf("attach symbolicated frames: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Alert rules ---

const ruleColumns = `id, project_id, name, level, threshold_count, threshold_window_minutes,
	 notify_interval_minutes, rearm_after_minutes, target_type, target_value, active`

func (s *PostgresStore) GetAlertRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	var r models.AlertRule
	err := s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, id,
	).Scan(&r.ID, &r.ProjectID, &r.Name, &r.Level, &r.ThresholdCount, &r.ThresholdWindowMinutes,
		&r.NotifyIntervalMinutes, &r.RearmAfterMinutes, &r.TargetType, &r.TargetValue, &r.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert rule: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListActiveAlertRules(ctx context.Context, projectID uuid.UUID) ([]*models.AlertRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE project_id = $1 AND active`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list active alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &r.Level, &r.ThresholdCount,
			&r.ThresholdWindowMinutes, &r.NotifyIntervalMinutes, &r.RearmAfterMinutes,
			&r.TargetType, &r.TargetValue, &r.Active); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

func (s *PostgresStore) ListAlertTargets(ctx context.Context, ruleID uuid.UUID) ([]*models.AlertTarget, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, rule_id, target_type, target_value, subject_template, body_template
		 FROM alert_targets WHERE rule_id = $1`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list alert targets: %w", err)
	}
	defer rows.Close()

	var targets []*models.AlertTarget
	for rows.Next() {
		var t models.AlertTarget
		if err := rows.Scan(&t.ID, &t.RuleID, &t.TargetType, &t.TargetValue,
			&t.SubjectTemplate, &t.BodyTemplate); err != nil {
			return nil, fmt.Errorf("scan alert target: %w", err)
		}
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}

func (s *PostgresStore) GetOrCreateAlertState(ctx context.Context, ruleID uuid.UUID, groupID int64) (*models.AlertState, error) {
	var st models.AlertState
	err := s.pool.QueryRow(ctx,
		`INSERT INTO alert_states (rule_id, group_id) VALUES ($1, $2)
		 ON CONFLICT (rule_id, group_id) DO UPDATE SET rule_id = EXCLUDED.rule_id
		 RETURNING rule_id, group_id, last_triggered_at, suppress_until`,
		ruleID, groupID,
	).Scan(&st.RuleID, &st.GroupID, &st.LastTriggeredAt, &st.SuppressUntil)
	if err != nil {
		return nil, fmt.Errorf("get or create alert state: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) SetAlertLastTriggered(ctx context.Context, ruleID uuid.UUID, groupID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_states (rule_id, group_id, last_triggered_at) VALUES ($1, $2, $3)
		 ON CONFLICT (rule_id, group_id) DO UPDATE SET last_triggered_at = EXCLUDED.last_triggered_at`,
		ruleID, groupID, at)
	if err != nil {
		return fmt.Errorf("set alert last triggered: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetAlertSuppressUntil(ctx context.Context, ruleID uuid.UUID, groupID int64, until *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_states (rule_id, group_id, suppress_until) VALUES ($1, $2, $3)
		 ON CONFLICT (rule_id, group_id) DO UPDATE SET suppress_until = EXCLUDED.suppress_until`,
		ruleID, groupID, until)
	if err != nil {
		return fmt.Errorf("set alert suppress until: %w", err)
	}
	return nil
}

// --- Sessions ---

func (s *PostgresStore) UpsertSession(ctx context.Context, sess *models.Session) (*models.Session, bool, error) {
	var out models.Session
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (project_id, release_id, session_id, environment, status, user_name, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (project_id, session_id) DO UPDATE SET
		   release_id  = COALESCE(EXCLUDED.release_id, sessions.release_id),
		   environment = EXCLUDED.environment,
		   status      = EXCLUDED.status,
		   user_name   = CASE WHEN EXCLUDED.user_name <> '' THEN EXCLUDED.user_name ELSE sessions.user_name END,
		   duration_ms = CASE WHEN EXCLUDED.duration_ms <> 0 THEN EXCLUDED.duration_ms ELSE sessions.duration_ms END,
		   updated_at  = NOW()
		 RETURNING id, project_id, release_id, session_id, environment, status, user_name,
		   duration_ms, started_at, updated_at, (xmax = 0)`,
		sess.ProjectID, sess.ReleaseID, sess.SessionID, sess.Environment, sess.Status, sess.User, sess.DurationMS,
	).Scan(&out.ID, &out.ProjectID, &out.ReleaseID, &out.SessionID, &out.Environment,
		&out.Status, &out.User, &out.DurationMS, &out.StartedAt, &out.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert session: %w", err)
	}
	return &out, created, nil
}

// newIngestToken returns a 48-char URL-safe capability token.
func newIngestToken() (string, error) {
	buf := make([]byte, 36)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
