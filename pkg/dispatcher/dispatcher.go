// Package dispatcher turns external stimuli (manual calls, API calls, sensor
// alerts and schedule fires) into workflow instances.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/custodian/pkg/conditions"
	"github.com/dukex/custodian/pkg/events"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/otelhelper"
	"github.com/dukex/custodian/pkg/persistence"
	"github.com/dukex/custodian/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Starter creates and schedules a new instance.
type Starter interface {
	Start(ctx context.Context, req workflow.StartRequest) (*models.WorkflowInstance, error)
}

// AlertEvent is a threshold violation reported by the sensor ingestion pipeline.
// An empty OrganizationID matches definitions of every organization.
type AlertEvent struct {
	DeviceID       string
	OrganizationID string
	AlertType      string
	CurrentValue   float64
	Threshold      *float64
	TriggeredAt    time.Time
}

type Dispatcher struct {
	definitions persistence.DefinitionRepository
	starter     Starter
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

func New(p persistence.Persistence, starter Starter, tracer trace.Tracer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		definitions: p.DefinitionRepository(),
		starter:     starter,
		tracer:      tracer,
		logger:      logger.With("module", "trigger_dispatcher"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// OnManualTrigger starts one instance of a MANUAL definition.
func (d *Dispatcher) OnManualTrigger(
	ctx context.Context,
	definitionID string,
	payload map[string]any,
	relatedEntityID *string,
	actor string,
) (*models.WorkflowInstance, error) {
	return d.invoke(ctx, models.TriggerKindManual, ErrNotManuallyExecutable, definitionID, payload, relatedEntityID, actor)
}

// OnAPITrigger starts one instance of an API definition.
func (d *Dispatcher) OnAPITrigger(
	ctx context.Context,
	definitionID string,
	payload map[string]any,
	relatedEntityID *string,
	actor string,
) (*models.WorkflowInstance, error) {
	return d.invoke(ctx, models.TriggerKindAPI, ErrNotAPIExecutable, definitionID, payload, relatedEntityID, actor)
}

// OnScheduleFire starts one instance of a SCHEDULE definition.
func (d *Dispatcher) OnScheduleFire(ctx context.Context, definitionID string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch.schedule",
		attribute.String(otelhelper.DefinitionIDKey, definitionID))
	defer span.End()

	definition, err := d.executable(ctx, definitionID, models.TriggerKindSchedule, ErrNotScheduled)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	firedAt := d.now()

	return d.starter.Start(ctx, workflow.StartRequest{
		Definition:  definition,
		Payload:     map[string]any{"scheduled_at": firedAt.Format(time.RFC3339Nano)},
		TriggeredBy: models.SystemActor,
	})
}

// OnAlertEvent starts one instance per active EVENT_ALERT definition matching the alert.
// A failure to start one instance does not prevent the others.
func (d *Dispatcher) OnAlertEvent(ctx context.Context, alert AlertEvent) ([]*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch.alert",
		attribute.String(otelhelper.DeviceIDKey, alert.DeviceID),
		attribute.String(otelhelper.TriggerKindKey, string(models.TriggerKindEventAlert)),
	)
	defer span.End()

	logger := d.logger.With("device_id", alert.DeviceID, "alert_type", alert.AlertType)

	definitions, err := d.definitions.ListActiveByTriggerKind(ctx, models.TriggerKindEventAlert)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list alert definitions: %w", err)
	}

	triggeredAt := alert.TriggeredAt
	if triggeredAt.IsZero() {
		triggeredAt = d.now()
	}

	instances := make([]*models.WorkflowInstance, 0)

	var errs []error

	for _, definition := range definitions {
		if !Matches(definition, alert) {
			continue
		}

		instance, err := d.starter.Start(ctx, workflow.StartRequest{
			Definition:  definition,
			Payload:     alertPayload(alert, definition, triggeredAt),
			TriggeredBy: models.SystemActor,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to start instance", "definition_id", definition.ID, "error", err)
			errs = append(errs, fmt.Errorf("definition %s: %w", definition.ID, err))

			continue
		}

		instances = append(instances, instance)
	}

	logger.InfoContext(ctx, "Alert dispatched", "definitions", len(definitions), "started", len(instances))

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return instances, err
}

// HandleSensorAlert adapts OnAlertEvent to the event bus alert subscription.
// An error asks for redelivery, so it is only returned when no instance was
// started: a redelivered alert would start the successful definitions again.
func (d *Dispatcher) HandleSensorAlert(ctx context.Context, alert *events.SensorAlert) error {
	instances, err := d.OnAlertEvent(ctx, AlertEvent{
		DeviceID:       alert.DeviceID,
		OrganizationID: alert.OrganizationID,
		AlertType:      alert.AlertType,
		CurrentValue:   alert.CurrentValue,
		Threshold:      alert.Threshold,
		TriggeredAt:    alert.TriggeredAt,
	})
	if err != nil && len(instances) > 0 {
		d.logger.WarnContext(ctx, "Alert partially dispatched, not redelivering",
			"device_id", alert.DeviceID,
			"alert_type", alert.AlertType,
			"started", len(instances),
			"error", err,
		)

		return nil
	}

	return err
}

// Matches reports whether an EVENT_ALERT definition applies to the alert: the
// metric equals the alert type and, when the definition configures a threshold,
// the current value compares to it with the configured operator.
func Matches(definition *models.WorkflowDefinition, alert AlertEvent) bool {
	config := definition.TriggerConfig

	if alert.OrganizationID != "" && definition.OrganizationID != alert.OrganizationID {
		return false
	}

	if config.Metric != alert.AlertType {
		return false
	}

	if config.Threshold == nil {
		return true
	}

	operator := config.Operator
	if operator == "" {
		operator = models.OperatorGreaterThan
	}

	return conditions.Compare(operator, alert.CurrentValue, *config.Threshold)
}

func alertPayload(alert AlertEvent, definition *models.WorkflowDefinition, triggeredAt time.Time) map[string]any {
	payload := map[string]any{
		"device_id":     alert.DeviceID,
		"alert_type":    alert.AlertType,
		"current_value": alert.CurrentValue,
		"triggered_at":  triggeredAt.Format(time.RFC3339Nano),
	}

	switch {
	case alert.Threshold != nil:
		payload["threshold"] = *alert.Threshold
	case definition.TriggerConfig.Threshold != nil:
		payload["threshold"] = *definition.TriggerConfig.Threshold
	}

	return payload
}

func (d *Dispatcher) invoke(
	ctx context.Context,
	kind models.TriggerKind,
	kindErr error,
	definitionID string,
	payload map[string]any,
	relatedEntityID *string,
	actor string,
) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch."+string(kind),
		attribute.String(otelhelper.DefinitionIDKey, definitionID),
		attribute.String(otelhelper.TriggerKindKey, string(kind)),
	)
	defer span.End()

	definition, err := d.executable(ctx, definitionID, kind, kindErr)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = models.ValidatePayload(definition.TriggerConfig.PayloadSchema, payload)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	instance, err := d.starter.Start(ctx, workflow.StartRequest{
		Definition:      definition,
		Payload:         payload,
		RelatedEntityID: relatedEntityID,
		TriggeredBy:     actor,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	d.logger.InfoContext(ctx, "Instance dispatched",
		"definition_id", definition.ID,
		"instance_id", instance.ID,
		"trigger_kind", kind,
		"actor", actor,
	)

	return instance, nil
}

func (d *Dispatcher) executable(
	ctx context.Context,
	definitionID string,
	kind models.TriggerKind,
	kindErr error,
) (*models.WorkflowDefinition, error) {
	definition, err := d.definitions.GetByID(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	if definition.TriggerKind != kind {
		return nil, fmt.Errorf("%w: %s has trigger kind %s", kindErr, definition.ID, definition.TriggerKind)
	}

	if !definition.IsExecutable() {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionInactive, definition.ID)
	}

	return definition, nil
}
