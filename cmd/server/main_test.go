package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracklight/tracklight/internal/cache"
	"github.com/tracklight/tracklight/internal/store"
	"github.com/tracklight/tracklight/pkg/models"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr    error
	projectErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) CreateProject(_ context.Context, _, _ string) (*models.Project, error) {
	return nil, nil
}
func (s *testStore) GetProjectBySlug(_ context.Context, _ string) (*models.Project, error) {
	if s.projectErr != nil {
		return nil, s.projectErr
	}
	return &models.Project{ID: uuid.New(), Slug: "web"}, nil
}
func (s *testStore) GetProjectByToken(_ context.Context, _ string) (*models.Project, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetOrCreateRelease(_ context.Context, _ uuid.UUID, _, _ string) (*models.Release, error) {
	return nil, nil
}
func (s *testStore) GetRelease(_ context.Context, _ uuid.UUID, _, _ string) (*models.Release, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetReleaseByID(_ context.Context, _ uuid.UUID) (*models.Release, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) CreateArtifact(_ context.Context, _ *models.Artifact) error { return nil }
func (s *testStore) ListJSONArtifacts(_ context.Context, _ uuid.UUID) ([]*models.Artifact, error) {
	return nil, nil
}
func (s *testStore) UpsertGroup(_ context.Context, _ uuid.UUID, _, _, _ string, _ time.Time) (*models.Group, bool, error) {
	return nil, false, nil
}
func (s *testStore) GetGroup(_ context.Context, _ int64) (*models.Group, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) UpdateGroupStatus(_ context.Context, _ int64, _ string, _ *time.Time) (*models.Group, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) AssignGroup(_ context.Context, _ int64, _ string) (*models.Group, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) SetGroupBookmark(_ context.Context, _ int64, _ bool) error {
	return store.ErrNotFound
}
func (s *testStore) CountGroupEventsSince(_ context.Context, _ int64, _ time.Time) (int, error) {
	return 0, nil
}
func (s *testStore) CreateEvent(_ context.Context, _ *models.Event) error { return nil }
func (s *testStore) AttachSymbolicated(_ context.Context, _ int64, _ []models.Frame) error {
	return nil
}
func (s *testStore) GetAlertRule(_ context.Context, _ uuid.UUID) (*models.AlertRule, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListActiveAlertRules(_ context.Context, _ uuid.UUID) ([]*models.AlertRule, error) {
	return nil, nil
}
func (s *testStore) ListAlertTargets(_ context.Context, _ uuid.UUID) ([]*models.AlertTarget, error) {
	return nil, nil
}
func (s *testStore) GetOrCreateAlertState(_ context.Context, _ uuid.UUID, _ int64) (*models.AlertState, error) {
	return nil, nil
}
func (s *testStore) SetAlertLastTriggered(_ context.Context, _ uuid.UUID, _ int64, _ time.Time) error {
	return nil
}
func (s *testStore) SetAlertSuppressUntil(_ context.Context, _ uuid.UUID, _ int64, _ *time.Time) error {
	return nil
}
func (s *testStore) UpsertSession(_ context.Context, _ *models.Session) (*models.Session, bool, error) {
	return nil, false, nil
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *testCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *testCache) IncrWindow(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{})

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{})

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_BothDegraded(t *testing.T) {
	h := healthHandler(
		&testStore{pingErr: errors.New("db down")},
		&testCache{pingErr: errors.New("redis down")},
	)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── project checker tests ──────────────────────────────────────────────────

func TestProjectChecker_Exists(t *testing.T) {
	pc := projectChecker{&testStore{}}

	ok, err := pc.ProjectExists(context.Background(), "web")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProjectChecker_NotFound(t *testing.T) {
	pc := projectChecker{&testStore{projectErr: store.ErrNotFound}}

	ok, err := pc.ProjectExists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProjectChecker_StoreError(t *testing.T) {
	pc := projectChecker{&testStore{projectErr: errors.New("db down")}}

	_, err := pc.ProjectExists(context.Background(), "web")
	require.Error(t, err)
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
