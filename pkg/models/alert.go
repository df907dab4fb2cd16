package models

import (
	"time"

	"github.com/google/uuid"
)

// TargetKind is the closed set of alert destinations.
type TargetKind string

const (
	TargetEmail   TargetKind = "email"
	TargetWebhook TargetKind = "webhook"
)

// AlertRule is a project-scoped notification policy.
type AlertRule struct {
	ID                     uuid.UUID  `db:"id"                       json:"id"`
	ProjectID              uuid.UUID  `db:"project_id"               json:"project_id"`
	Name                   string     `db:"name"                     json:"name"`
	Level                  string     `db:"level"                    json:"level"` // empty = any level
	ThresholdCount         int        `db:"threshold_count"          json:"threshold_count"`
	ThresholdWindowMinutes int        `db:"threshold_window_minutes" json:"threshold_window_minutes"`
	NotifyIntervalMinutes  int        `db:"notify_interval_minutes"  json:"notify_interval_minutes"`
	// RearmAfterMinutes is the legacy notify interval, consulted only when
	// NotifyIntervalMinutes is unset.
	RearmAfterMinutes int        `db:"rearm_after_minutes" json:"rearm_after_minutes"`
	TargetType        TargetKind `db:"target_type"         json:"target_type"`
	TargetValue       string     `db:"target_value"        json:"target_value"`
	Active            bool       `db:"active"              json:"active"`
}

// AlertTarget is one named destination of a rule. Rules with no targets fall
// back to a single implicit target built from the rule's own type/value.
type AlertTarget struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	RuleID          uuid.UUID  `db:"rule_id"          json:"rule_id"`
	TargetType      TargetKind `db:"target_type"      json:"target_type"`
	TargetValue     string     `db:"target_value"     json:"target_value"`
	SubjectTemplate string     `db:"subject_template" json:"subject_template"`
	BodyTemplate    string     `db:"body_template"    json:"body_template"`
}

// AlertState is per (rule, group) mutable state, created lazily on first
// evaluation of that pair.
type AlertState struct {
	RuleID          uuid.UUID  `db:"rule_id"           json:"rule_id"`
	GroupID         int64      `db:"group_id"          json:"group_id"`
	LastTriggeredAt *time.Time `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	SuppressUntil   *time.Time `db:"suppress_until"    json:"suppress_until,omitempty"`
}
