// Package ingest runs the event and session intake pipelines: project
// resolution, rate limiting, grouping, persistence, and best-effort
// downstream delivery.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tracklight/tracklight/internal/broker"
	"github.com/tracklight/tracklight/internal/cache"
	"github.com/tracklight/tracklight/internal/grouping"
	"github.com/tracklight/tracklight/internal/store"
	"github.com/tracklight/tracklight/internal/worker"
	"github.com/tracklight/tracklight/internal/ws"
	"github.com/tracklight/tracklight/pkg/models"
)

var (
	// ErrRateLimited signals that the project exhausted its ingest quota
	// for the current window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrValidation signals a request the caller must fix before retrying.
	ErrValidation = errors.New("invalid payload")
)

// EventPayload is the inbound event body.
type EventPayload struct {
	Message        string         `json:"message"`
	Level          string         `json:"level"`
	Severity       string         `json:"severity"`
	SeverityText   string         `json:"severity_text"`
	SeverityNumber *int           `json:"severity_number"`
	Extra          map[string]any `json:"extra"`
	Release        string         `json:"release"`
	Environment    string         `json:"environment"`
	Stack          string         `json:"stack"`
	Frames         []models.Frame `json:"frames"`
	Tags           []string       `json:"tags"`
}

// SessionPayload is the inbound session body.
type SessionPayload struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	Release     string `json:"release"`
	Environment string `json:"environment"`
	User        string `json:"user"`
	DurationMS  int    `json:"duration_ms"`
}

// Limiter checks the per-scope ingest quota.
type Limiter interface {
	Check(ctx context.Context, scope string) (allowed bool, remaining int, err error)
}

// Symbolicator resolves minified frames to original positions.
type Symbolicator interface {
	Symbolicate(ctx context.Context, releaseID uuid.UUID, frames []models.Frame, stack string) ([]models.Frame, error)
}

// Evaluator runs alert rules for an accepted event.
type Evaluator interface {
	EvaluateForEvent(ctx context.Context, projectSlug string, event *models.Event, group *models.Group)
}

// Publisher hands accepted records to the message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, rec broker.EventRecord)
	PublishSession(ctx context.Context, rec broker.SessionRecord)
}

// Broadcaster pushes live notifications to subscribed clients.
type Broadcaster interface {
	BroadcastEvent(msg ws.EventMessage)
}

// Result is one accepted event plus whether its group is new.
type Result struct {
	ProjectSlug  string
	Event        *models.Event
	Group        *models.Group
	GroupCreated bool
}

// Service orchestrates ingestion. All downstream sinks past the event
// insert are best effort.
type Service struct {
	store     store.Store
	limiter   Limiter
	sym       Symbolicator
	alerts    Evaluator
	submitter worker.Submitter
	producer  Publisher
	hub       Broadcaster
	log       *slog.Logger
	now       func() time.Time
}

// NewService wires the pipeline.
func NewService(st store.Store, limiter Limiter, sym Symbolicator, alerts Evaluator,
	submitter worker.Submitter, producer Publisher, hub Broadcaster, log *slog.Logger) *Service {
	return &Service{
		store:     st,
		limiter:   limiter,
		sym:       sym,
		alerts:    alerts,
		submitter: submitter,
		producer:  producer,
		hub:       hub,
		log:       log,
		now:       time.Now,
	}
}

// IngestBySlug accepts an event on the public per-project path.
func (s *Service) IngestBySlug(ctx context.Context, slug string, raw json.RawMessage) (*Result, error) {
	project, err := s.store.GetProjectBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, project, cache.ProjectScope(slug), raw)
}

// IngestByToken accepts an event on the credentialed path.
func (s *Service) IngestByToken(ctx context.Context, token string, raw json.RawMessage) (*Result, error) {
	project, err := s.store.GetProjectByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, project, cache.TokenScope(token), raw)
}

func (s *Service) ingest(ctx context.Context, project *models.Project, scope string, raw json.RawMessage) (*Result, error) {
	allowed, _, err := s.limiter.Check(ctx, scope)
	if err != nil {
		s.log.Warn("rate limit check failed, allowing request", "project", project.Slug, "error", err)
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	var payload EventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	level := NormalizeLevel(&payload)
	environment := payload.Environment
	if environment == "" {
		environment = "production"
	}

	var release *models.Release
	if payload.Release != "" {
		release, err = s.store.GetOrCreateRelease(ctx, project.ID, payload.Release, environment)
		if err != nil {
			return nil, err
		}
	}

	fingerprint, title := grouping.Fingerprint(payload.Message, level)
	group, created, err := s.store.UpsertGroup(ctx, project.ID, fingerprint, title, level, s.now().UTC())
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		ProjectID:   project.ID,
		GroupID:     &group.ID,
		Message:     payload.Message,
		Level:       level,
		Payload:     raw,
		Environment: environment,
		Tags:        payload.Tags,
		Stack:       payload.Stack,
	}
	if release != nil {
		event.ReleaseID = &release.ID
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	if release != nil && (len(payload.Frames) > 0 || payload.Stack != "") {
		s.symbolicate(ctx, release.ID, event, &payload)
	}

	// Alert evaluation runs off the request path when a pool is configured.
	evEvent, evGroup := *event, *group
	s.submitter.Submit(func(taskCtx context.Context) {
		s.alerts.EvaluateForEvent(taskCtx, project.Slug, &evEvent, &evGroup)
	})

	s.producer.PublishEvent(ctx, broker.EventRecord{
		ID:          event.ID,
		EventID:     fmt.Sprintf("%d", event.ID),
		Project:     project.Slug,
		Message:     event.Message,
		Level:       event.Level,
		Environment: event.Environment,
		Fingerprint: group.Fingerprint,
		Title:       group.Title,
		ReceivedAt:  event.ReceivedAt.UTC().Format(time.RFC3339),
	})

	s.broadcast(project.Slug, event, group)

	return &Result{ProjectSlug: project.Slug, Event: event, Group: group, GroupCreated: created}, nil
}

func (s *Service) symbolicate(ctx context.Context, releaseID uuid.UUID, event *models.Event, payload *EventPayload) {
	frames, err := s.sym.Symbolicate(ctx, releaseID, payload.Frames, payload.Stack)
	if err != nil {
		s.log.Warn("symbolication failed", "event", event.ID, "error", err)
		return
	}
	if len(frames) == 0 {
		return
	}
	if err := s.store.AttachSymbolicated(ctx, event.ID, frames); err != nil {
		s.log.Warn("attach symbolicated frames failed", "event", event.ID, "error", err)
		return
	}
	event.Symbolicated = frames
}

func (s *Service) broadcast(slug string, event *models.Event, group *models.Group) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("hub broadcast panicked", "panic", r)
		}
	}()
	s.hub.BroadcastEvent(ws.EventMessage{
		ID:          event.ID,
		Project:     slug,
		Level:       event.Level,
		Message:     event.Message,
		Timestamp:   event.ReceivedAt.UTC().Format(time.RFC3339),
		Environment: event.Environment,
		Fingerprint: group.Fingerprint,
	})
}

// SessionResult is one stored session plus whether this was its first report.
type SessionResult struct {
	Session *models.Session
	Created bool
}

// IngestSession accepts a session report on the credentialed path.
func (s *Service) IngestSession(ctx context.Context, token string, raw json.RawMessage) (*SessionResult, error) {
	project, err := s.store.GetProjectByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	var payload SessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if payload.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrValidation)
	}

	environment := payload.Environment
	if environment == "" {
		environment = "production"
	}
	status := payload.Status
	if status == "" {
		status = models.SessionInit
	}

	var release *models.Release
	if payload.Release != "" {
		release, err = s.store.GetOrCreateRelease(ctx, project.ID, payload.Release, environment)
		if err != nil {
			return nil, err
		}
	}

	session := &models.Session{
		ProjectID:   project.ID,
		SessionID:   payload.SessionID,
		Environment: environment,
		Status:      status,
		User:        payload.User,
		DurationMS:  payload.DurationMS,
	}
	if release != nil {
		session.ReleaseID = &release.ID
	}

	stored, created, err := s.store.UpsertSession(ctx, session)
	if err != nil {
		return nil, err
	}

	releaseVersion := payload.Release
	s.producer.PublishSession(ctx, broker.SessionRecord{
		Project:     project.Slug,
		Release:     releaseVersion,
		Environment: stored.Environment,
		Status:      stored.Status,
		SessionID:   stored.SessionID,
		User:        stored.User,
		DurationMS:  stored.DurationMS,
		StartedAt:   stored.StartedAt.UTC().Format(time.RFC3339),
	})

	return &SessionResult{Session: stored, Created: created}, nil
}
