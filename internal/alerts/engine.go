// Package alerts evaluates threshold rules against incoming events and
// delivers notifications to configured targets.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tracklight/tracklight/pkg/models"
)

const (
	defaultNotifyInterval = 60 * time.Minute
	defaultWindowMinutes  = 5
)

// Store is the persistence surface the engine needs.
type Store interface {
	ListActiveAlertRules(ctx context.Context, projectID uuid.UUID) ([]*models.AlertRule, error)
	ListAlertTargets(ctx context.Context, ruleID uuid.UUID) ([]*models.AlertTarget, error)
	GetOrCreateAlertState(ctx context.Context, ruleID uuid.UUID, groupID int64) (*models.AlertState, error)
	SetAlertLastTriggered(ctx context.Context, ruleID uuid.UUID, groupID int64, at time.Time) error
	CountGroupEventsSince(ctx context.Context, groupID int64, since time.Time) (int, error)
}

// Payload is the data a fired rule exposes to templates and sinks. Count
// is the group's lifetime total, not the threshold-window count.
type Payload struct {
	Project    string
	GroupID    int64
	Title      string
	Level      string
	Message    string
	Count      int64
	ReceivedAt time.Time
}

// Engine runs the per-rule suppression chain and dispatches on a fire.
type Engine struct {
	store Store
	sink  Sink
	log   *slog.Logger
	now   func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(store Store, sink Sink, log *slog.Logger) *Engine {
	return &Engine{store: store, sink: sink, log: log, now: time.Now}
}

// EvaluateForEvent checks every active rule of the event's project against
// the group. Delivery errors never propagate; the only effect visible to
// the caller is log output.
func (e *Engine) EvaluateForEvent(ctx context.Context, projectSlug string, event *models.Event, group *models.Group) {
	rules, err := e.store.ListActiveAlertRules(ctx, event.ProjectID)
	if err != nil {
		e.log.Warn("list alert rules failed", "project", projectSlug, "error", err)
		return
	}

	now := e.now().UTC()
	for _, rule := range rules {
		fired, err := e.evaluateRule(ctx, rule, projectSlug, event, group, now)
		if err != nil {
			e.log.Warn("alert rule evaluation failed",
				"rule", rule.ID, "group", group.ID, "error", err)
			continue
		}
		if fired {
			e.log.Info("alert fired",
				"rule", rule.ID, "project", projectSlug, "group", group.ID)
		}
	}
}

// evaluateRule applies the suppression chain in order and fires when every
// check passes. Returns whether the rule fired.
func (e *Engine) evaluateRule(ctx context.Context, rule *models.AlertRule, projectSlug string, event *models.Event, group *models.Group, now time.Time) (bool, error) {
	if !rule.Active {
		return false, nil
	}
	if rule.Level != "" && rule.Level != event.Level {
		return false, nil
	}

	state, err := e.store.GetOrCreateAlertState(ctx, rule.ID, group.ID)
	if err != nil {
		return false, err
	}
	if state.SuppressUntil != nil && now.Before(*state.SuppressUntil) {
		return false, nil
	}

	windowMinutes := rule.ThresholdWindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = defaultWindowMinutes
	}
	window := time.Duration(windowMinutes) * time.Minute
	count, err := e.store.CountGroupEventsSince(ctx, group.ID, now.Add(-window))
	if err != nil {
		return false, err
	}
	if count < rule.ThresholdCount {
		return false, nil
	}

	if state.LastTriggeredAt != nil && now.Sub(*state.LastTriggeredAt) < notifyInterval(rule) {
		return false, nil
	}

	payload := Payload{
		Project:    projectSlug,
		GroupID:    group.ID,
		Title:      group.Title,
		Level:      event.Level,
		Message:    event.Message,
		Count:      group.Count,
		ReceivedAt: event.ReceivedAt,
	}
	e.dispatch(ctx, rule, payload)

	if err := e.store.SetAlertLastTriggered(ctx, rule.ID, group.ID, now); err != nil {
		return true, err
	}
	return true, nil
}

// notifyInterval picks the re-fire interval: notify_interval, then the
// legacy rearm_after, then an hour.
func notifyInterval(rule *models.AlertRule) time.Duration {
	if rule.NotifyIntervalMinutes > 0 {
		return time.Duration(rule.NotifyIntervalMinutes) * time.Minute
	}
	if rule.RearmAfterMinutes > 0 {
		return time.Duration(rule.RearmAfterMinutes) * time.Minute
	}
	return defaultNotifyInterval
}

// dispatch resolves targets and delivers one notification per target,
// swallowing every delivery error.
func (e *Engine) dispatch(ctx context.Context, rule *models.AlertRule, payload Payload) {
	targets, err := e.store.ListAlertTargets(ctx, rule.ID)
	if err != nil {
		e.log.Warn("list alert targets failed", "rule", rule.ID, "error", err)
		targets = nil
	}
	if len(targets) == 0 && rule.TargetValue != "" {
		// A rule without explicit target rows notifies its own type/value.
		targets = []*models.AlertTarget{{
			RuleID:      rule.ID,
			TargetType:  rule.TargetType,
			TargetValue: rule.TargetValue,
		}}
	}

	for _, target := range targets {
		n := Notification{
			Subject: renderTemplate(target.SubjectTemplate, payload, defaultSubject(payload)),
			Body:    renderTemplate(target.BodyTemplate, payload, defaultBody(payload)),
			Payload: payload,
		}
		if err := e.sink.Deliver(ctx, target.TargetType, target.TargetValue, n); err != nil {
			e.log.Warn("alert delivery failed",
				"rule", rule.ID, "kind", target.TargetType, "error", err)
		}
	}
}

func defaultSubject(p Payload) string {
	return fmt.Sprintf("[%s] %s", p.Project, p.Title)
}

func defaultBody(p Payload) string {
	return fmt.Sprintf("%s\n\nproject: %s\nlevel: %s\ncount: %d\nreceived: %s\n",
		p.Message, p.Project, p.Level, p.Count, p.ReceivedAt.Format(time.RFC3339))
}

// renderTemplate substitutes {field} placeholders from the payload. Any
// unknown placeholder or unbalanced brace makes the whole template fall
// back to the untemplated default.
func renderTemplate(tmpl string, p Payload, fallback string) string {
	if tmpl == "" {
		return fallback
	}
	fields := map[string]string{
		"project":     p.Project,
		"group":       fmt.Sprintf("%d", p.GroupID),
		"title":       p.Title,
		"level":       p.Level,
		"message":     p.Message,
		"count":       fmt.Sprintf("%d", p.Count),
		"received_at": p.ReceivedAt.Format(time.RFC3339),
	}

	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return fallback
			}
			b.WriteString(rest)
			return b.String()
		}
		if strings.IndexByte(rest[:open], '}') >= 0 {
			return fallback
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return fallback
		}
		name := rest[open+1 : open+closing]
		value, ok := fields[name]
		if !ok {
			return fallback
		}
		b.WriteString(rest[:open])
		b.WriteString(value)
		rest = rest[open+closing+1:]
	}
}
