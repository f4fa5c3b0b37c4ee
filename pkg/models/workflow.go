// Package models defines the core domain models for custody workflow automation
package models

import "time"

// TriggerKind identifies what starts instances of a workflow definition.
type TriggerKind string

const (
	TriggerKindManual     TriggerKind = "MANUAL"
	TriggerKindEventAlert TriggerKind = "EVENT_ALERT"
	TriggerKindSchedule   TriggerKind = "SCHEDULE"
	TriggerKindAPI        TriggerKind = "API"
)

// TriggerConfig holds the kind-specific trigger parameters of a definition.
type TriggerConfig struct {
	// EVENT_ALERT
	Metric    string   `json:"metric,omitempty"`
	Operator  Operator `json:"operator,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`

	// SCHEDULE
	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"`

	// MANUAL and API
	PayloadSchema map[string]any `json:"payload_schema,omitempty"`
}

// WorkflowDefinition is a named, versionable automation rule.
type WorkflowDefinition struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"                      validate:"required,min=3"`
	Description    string        `json:"description,omitempty"`
	OrganizationID string        `json:"organization_id"           validate:"required"`
	TriggerKind    TriggerKind   `json:"trigger_kind"              validate:"required,oneof=MANUAL EVENT_ALERT SCHEDULE API"`
	TriggerConfig  TriggerConfig `json:"trigger_config"`
	Conditions     []Condition   `json:"conditions"                validate:"dive"`
	Actions        []Action      `json:"actions"                   validate:"required,min=1,dive"`
	Active         bool          `json:"active"`
	Priority       int           `json:"priority"`
	TimeoutMinutes *int          `json:"timeout_minutes,omitempty" validate:"omitempty,min=1"`
	Version        int           `json:"version"`
	CreatedBy      string        `json:"created_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	DeletedAt      *time.Time    `json:"deleted_at,omitempty"`
}

// IsExecutable reports whether new instances may be started from the definition.
func (d *WorkflowDefinition) IsExecutable() bool {
	return d.Active && d.DeletedAt == nil
}

// Timeout returns the advisory whole-instance timeout, zero when unset.
func (d *WorkflowDefinition) Timeout() time.Duration {
	if d.TimeoutMinutes == nil {
		return 0
	}

	return time.Duration(*d.TimeoutMinutes) * time.Minute
}
