package alerts_test

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracklight/tracklight/internal/alerts"
	"github.com/tracklight/tracklight/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeAlertStore backs the engine with in-memory rules, targets, and state.
type fakeAlertStore struct {
	mu          sync.Mutex
	rules       []*models.AlertRule
	targets     map[uuid.UUID][]*models.AlertTarget
	states      map[string]*models.AlertState
	eventCounts map[int64]int
	lastSince   time.Time
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{
		targets:     make(map[uuid.UUID][]*models.AlertTarget),
		states:      make(map[string]*models.AlertState),
		eventCounts: make(map[int64]int),
	}
}

func stateKey(ruleID uuid.UUID, groupID int64) string {
	return ruleID.String() + "/" + strconv.FormatInt(groupID, 10)
}

func (f *fakeAlertStore) ListActiveAlertRules(ctx context.Context, projectID uuid.UUID) ([]*models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AlertRule
	for _, r := range f.rules {
		if r.ProjectID == projectID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAlertStore) ListAlertTargets(ctx context.Context, ruleID uuid.UUID) ([]*models.AlertTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets[ruleID], nil
}

func (f *fakeAlertStore) GetOrCreateAlertState(ctx context.Context, ruleID uuid.UUID, groupID int64) (*models.AlertState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stateKey(ruleID, groupID)
	if st, ok := f.states[key]; ok {
		snapshot := *st
		return &snapshot, nil
	}
	f.states[key] = &models.AlertState{RuleID: ruleID, GroupID: groupID}
	snapshot := *f.states[key]
	return &snapshot, nil
}

func (f *fakeAlertStore) SetAlertLastTriggered(ctx context.Context, ruleID uuid.UUID, groupID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stateKey(ruleID, groupID)
	if _, ok := f.states[key]; !ok {
		f.states[key] = &models.AlertState{RuleID: ruleID, GroupID: groupID}
	}
	f.states[key].LastTriggeredAt = &at
	return nil
}

func (f *fakeAlertStore) snooze(ruleID uuid.UUID, groupID int64, until time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stateKey(ruleID, groupID)
	if _, ok := f.states[key]; !ok {
		f.states[key] = &models.AlertState{RuleID: ruleID, GroupID: groupID}
	}
	f.states[key].SuppressUntil = &until
}

func (f *fakeAlertStore) CountGroupEventsSince(ctx context.Context, groupID int64, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSince = since
	return f.eventCounts[groupID], nil
}

// recordingSink captures delivered notifications.
type recordingSink struct {
	mu        sync.Mutex
	delivered []delivery
}

type delivery struct {
	kind        models.TargetKind
	destination string
	n           alerts.Notification
}

func (s *recordingSink) Deliver(ctx context.Context, kind models.TargetKind, destination string, n alerts.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, delivery{kind, destination, n})
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func fixture() (*fakeAlertStore, *recordingSink, *alerts.Engine, *models.AlertRule, *models.Event, *models.Group) {
	store := newFakeAlertStore()
	sink := &recordingSink{}
	engine := alerts.NewEngine(store, sink, testLogger())

	projectID := uuid.New()
	rule := &models.AlertRule{
		ID: uuid.New(), ProjectID: projectID, Name: "spike",
		Level: "error", ThresholdCount: 3, ThresholdWindowMinutes: 5,
		NotifyIntervalMinutes: 30,
		TargetType:            models.TargetWebhook, TargetValue: "https://hooks.example.com/x",
		Active: true,
	}
	store.rules = append(store.rules, rule)

	event := &models.Event{
		ID: 1, ProjectID: projectID, Message: "boom",
		Level: "error", ReceivedAt: time.Now().UTC(),
	}
	group := &models.Group{ID: 10, ProjectID: projectID, Title: "boom", Level: "error"}
	return store, sink, engine, rule, event, group
}

func TestEngine_ThresholdGatesFiring(t *testing.T) {
	store, sink, engine, _, event, group := fixture()
	ctx := context.Background()

	// First and second events stay below the threshold of 3.
	store.eventCounts[group.ID] = 1
	engine.EvaluateForEvent(ctx, "web", event, group)
	store.eventCounts[group.ID] = 2
	engine.EvaluateForEvent(ctx, "web", event, group)
	assert.Zero(t, sink.count())

	// The third crosses it.
	store.eventCounts[group.ID] = 3
	engine.EvaluateForEvent(ctx, "web", event, group)
	assert.Equal(t, 1, sink.count())
}

func TestEngine_NotifyIntervalSuppressesRefire(t *testing.T) {
	store, sink, engine, _, event, group := fixture()
	ctx := context.Background()
	store.eventCounts[group.ID] = 5

	engine.EvaluateForEvent(ctx, "web", event, group)
	require.Equal(t, 1, sink.count())

	// More matching events inside the 30m interval stay quiet.
	engine.EvaluateForEvent(ctx, "web", event, group)
	engine.EvaluateForEvent(ctx, "web", event, group)
	assert.Equal(t, 1, sink.count())
}

func TestEngine_SnoozeSuppresses(t *testing.T) {
	store, sink, engine, rule, event, group := fixture()
	ctx := context.Background()
	store.eventCounts[group.ID] = 5
	store.snooze(rule.ID, group.ID, time.Now().Add(time.Hour))

	engine.EvaluateForEvent(ctx, "web", event, group)
	assert.Zero(t, sink.count())
}

func TestEngine_ExpiredSnoozeDoesNotSuppress(t *testing.T) {
	store, sink, engine, rule, event, group := fixture()
	ctx := context.Background()
	store.eventCounts[group.ID] = 5
	store.snooze(rule.ID, group.ID, time.Now().Add(-time.Minute))

	engine.EvaluateForEvent(ctx, "web", event, group)
	assert.Equal(t, 1, sink.count())
}

func TestEngine_LevelFilterMismatch(t *testing.T) {
	store, sink, engine, _, event, group := fixture()
	ctx := context.Background()
	store.eventCounts[group.ID] = 5
	event.Level = "warning"

	engine.EvaluateForEvent(ctx, "web", event, group)
	assert.Zero(t, sink.count())
}

func TestEngine_InactiveRuleNeverFires(t *testing.T) {
	store, sink, engine, rule, event, group := fixture()
	ctx := context.Background()
	store.eventCounts[group.ID] = 5
	rule.Active = false

	engine.EvaluateForEvent(ctx, "web", event, group)
	assert.Zero(t, sink.count())
}

func TestEngine_ImplicitTargetFromRule(t *testing.T) {
	store, sink, engine, _, event, group := fixture()
	ctx := context.Background()
	store.eventCounts[group.ID] = 3

	engine.EvaluateForEvent(ctx, "web", event, group)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, models.TargetWebhook, sink.delivered[0].kind)
	assert.Equal(t, "https://hooks.example.com/x", sink.delivered[0].destination)
}

func TestEngine_ExplicitTargetsWithTemplates(t *testing.T) {
	store, sink, engine, rule, event, group := fixture()
	ctx := context.Background()
	store.eventCounts[group.ID] = 3
	group.Count = 3

	store.targets[rule.ID] = []*models.AlertTarget{
		{
			RuleID: rule.ID, TargetType: models.TargetEmail, TargetValue: "oncall@example.com",
			SubjectTemplate: "{level} in {project}: {title}",
			BodyTemplate:    "{count} events",
		},
		{
			RuleID: rule.ID, TargetType: models.TargetWebhook, TargetValue: "https://hooks.example.com/y",
		},
	}

	engine.EvaluateForEvent(ctx, "web", event, group)
	require.Equal(t, 2, sink.count())
	assert.Equal(t, "error in web: boom", sink.delivered[0].n.Subject)
	assert.Equal(t, "3 events", sink.delivered[0].n.Body)
}

func TestEngine_MalformedTemplateFallsBack(t *testing.T) {
	store, sink, engine, rule, event, group := fixture()
	ctx := context.Background()
	store.eventCounts[group.ID] = 3

	store.targets[rule.ID] = []*models.AlertTarget{{
		RuleID: rule.ID, TargetType: models.TargetEmail, TargetValue: "oncall@example.com",
		SubjectTemplate: "{no_such_field} happened",
		BodyTemplate:    "unbalanced {title",
	}}

	engine.EvaluateForEvent(ctx, "web", event, group)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, "[web] boom", sink.delivered[0].n.Subject)
	assert.Contains(t, sink.delivered[0].n.Body, "boom")
	assert.Contains(t, sink.delivered[0].n.Body, "project: web")
}

func TestEngine_PayloadCarriesAggregateCount(t *testing.T) {
	store, sink, engine, _, event, group := fixture()
	ctx := context.Background()

	// Three events inside the window trip the threshold, but the payload
	// reports the group's lifetime total.
	store.eventCounts[group.ID] = 3
	group.Count = 70

	engine.EvaluateForEvent(ctx, "web", event, group)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, int64(70), sink.delivered[0].n.Payload.Count)
	assert.Equal(t, int64(10), sink.delivered[0].n.Payload.GroupID)
}

func TestEngine_ZeroWindowDefaultsToFiveMinutes(t *testing.T) {
	store, sink, engine, rule, event, group := fixture()
	ctx := context.Background()
	rule.ThresholdWindowMinutes = 0
	store.eventCounts[group.ID] = 3

	before := time.Now().UTC()
	engine.EvaluateForEvent(ctx, "web", event, group)

	assert.Equal(t, 1, sink.count(), "a zero-window rule can still fire")
	store.mu.Lock()
	since := store.lastSince
	store.mu.Unlock()
	window := before.Sub(since)
	assert.InDelta(t, float64(5*time.Minute), float64(window), float64(time.Second))
}
