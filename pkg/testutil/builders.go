// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"log/slog"
	"os"

	"github.com/dukex/custodian/pkg/models"
	"github.com/google/uuid"
)

// Logger returns a logger that only prints errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// CreateTestDefinition creates an active MANUAL definition with one NOTIFY
// action that can be overridden.
func CreateTestDefinition(overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	definition := &models.WorkflowDefinition{
		ID:             uuid.New().String(),
		Name:           "Test Definition",
		OrganizationID: "org-1",
		TriggerKind:    models.TriggerKindManual,
		Actions: []models.Action{
			models.NewAction(&models.NotifyConfig{Roles: []string{"supervisor"}, Message: "test"}),
		},
		Active:  true,
		Version: 1,
	}

	for _, override := range overrides {
		override(definition)
	}

	return definition
}

// WithID sets the definition ID.
func WithID(id string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.ID = id
	}
}

// WithSchedule configures the definition as a SCHEDULE definition.
func WithSchedule(cronExpression, timezone string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.TriggerKind = models.TriggerKindSchedule
		d.TriggerConfig = models.TriggerConfig{CronExpression: cronExpression, Timezone: timezone}
	}
}

// WithAlertTrigger configures the definition as an EVENT_ALERT definition.
func WithAlertTrigger(metric string, operator models.Operator, threshold *float64) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.TriggerKind = models.TriggerKindEventAlert
		d.TriggerConfig = models.TriggerConfig{Metric: metric, Operator: operator, Threshold: threshold}
	}
}

// WithActions replaces the action list.
func WithActions(configs ...models.ActionConfig) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Actions = make([]models.Action, 0, len(configs))
		for _, config := range configs {
			d.Actions = append(d.Actions, models.NewAction(config))
		}
	}
}

// WithTimeout sets the whole-instance timeout in minutes.
func WithTimeout(minutes int) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.TimeoutMinutes = &minutes
	}
}

// WithVersion sets the definition version.
func WithVersion(version int) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Version = version
	}
}

// CreateTestInstance creates an instance of the definition in the given status.
func CreateTestInstance(definition *models.WorkflowDefinition, status models.InstanceStatus) *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID:             uuid.New().String(),
		DefinitionID:   definition.ID,
		OrganizationID: definition.OrganizationID,
		Status:         status,
		TriggerKind:    definition.TriggerKind,
		TriggeredBy:    models.SystemActor,
	}
}
