// Package workflow implements the instance state machine: it creates instances,
// gates them on conditions, runs their steps in order and resumes them across the
// approval boundary.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/custodian/pkg/actions"
	"github.com/dukex/custodian/pkg/approvals"
	"github.com/dukex/custodian/pkg/eventbus"
	"github.com/dukex/custodian/pkg/events"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/otelhelper"
	"github.com/dukex/custodian/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ActionExecutor runs one action of a step.
type ActionExecutor interface {
	Execute(ctx context.Context, req actions.ExecutionRequest) (models.ActionResult, error)
}

// ApprovalDecider records approval decisions and reports the resulting outcome.
type ApprovalDecider interface {
	Decide(ctx context.Context, req approvals.DecideRequest) (*approvals.DecideResult, error)
}

// StartRequest describes a trigger match for one definition.
type StartRequest struct {
	Definition      *models.WorkflowDefinition
	Payload         map[string]any
	Context         map[string]any
	RelatedEntityID *string
	TriggeredBy     string
}

// CancelRequest asks to stop an instance. Reason is optional.
type CancelRequest struct {
	InstanceID string
	Actor      string
	Reason     string
}

type Engine struct {
	definitions persistence.DefinitionRepository
	instances   persistence.InstanceRepository
	steps       persistence.StepRepository
	approvals   persistence.ApprovalRepository
	custody     persistence.CustodyRepository

	executor  ActionExecutor
	decider   ApprovalDecider
	publisher eventbus.Publisher
	runner    *Runner
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(
	p persistence.Persistence,
	executor ActionExecutor,
	decider ApprovalDecider,
	publisher eventbus.Publisher,
	runner *Runner,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		definitions: p.DefinitionRepository(),
		instances:   p.InstanceRepository(),
		steps:       p.StepRepository(),
		approvals:   p.ApprovalRepository(),
		custody:     p.CustodyRepository(),
		executor:    executor,
		decider:     decider,
		publisher:   publisher,
		runner:      runner,
		tracer:      tracer,
		logger:      logger.With("module", "workflow_engine"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start durably creates a PENDING instance and schedules its execution. It
// returns once the instance is stored; later failures only show on the instance.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	definition := req.Definition
	now := e.now()

	var entity *models.Asset

	if req.RelatedEntityID != nil && *req.RelatedEntityID != "" {
		asset, err := e.custody.GetAsset(ctx, *req.RelatedEntityID)
		switch {
		case err == nil:
			entity = asset
		case persistence.IsNotFound(err):
			e.logger.WarnContext(ctx, "Related entity not found", "related_entity_id", *req.RelatedEntityID)
		default:
			return nil, fmt.Errorf("failed to resolve related entity: %w", err)
		}
	}

	instance := &models.WorkflowInstance{
		DefinitionID:    definition.ID,
		OrganizationID:  definition.OrganizationID,
		Status:          models.InstanceStatusPending,
		TriggerKind:     definition.TriggerKind,
		TriggerPayload:  req.Payload,
		Context:         seedContext(req.Payload, req.Context, definition.TriggerKind, req.TriggeredBy, now, entity),
		RelatedEntityID: req.RelatedEntityID,
		TriggeredBy:     req.TriggeredBy,
	}

	err := e.instances.Create(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	e.logger.InfoContext(ctx, "Instance created",
		"instance_id", instance.ID,
		"definition_id", definition.ID,
		"trigger_kind", definition.TriggerKind,
	)

	e.publish(ctx, instance, events.InstanceStartedEvent, "")

	id := instance.ID
	e.runner.Submit(ctx, "execute "+id, func(ctx context.Context) error {
		return e.execute(ctx, id)
	})

	return instance, nil
}

// Decide records an approval decision and applies its outcome to the instance.
// Decisions on instances that already left AWAITING_APPROVAL are recorded only.
func (e *Engine) Decide(ctx context.Context, req approvals.DecideRequest) (*approvals.DecideResult, error) {
	result, err := e.decider.Decide(ctx, req)
	if err != nil {
		return nil, err
	}

	err = e.applyOutcome(ctx, result.Approval.InstanceID, result.Approval.StepID, result.Outcome, req.Actor)
	if err != nil {
		return result, err
	}

	return result, nil
}

// Cancel force-transitions a PENDING, IN_PROGRESS, AWAITING_APPROVAL or EXECUTING
// instance to CANCELLED. Completed steps are left as they are.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (*models.WorkflowInstance, error) {
	actor := req.Actor
	if actor == "" {
		actor = models.SystemActor
	}

	message := "cancelled by " + actor
	if req.Reason != "" {
		message += ": " + req.Reason
	}

	now := e.now()

	instance, err := e.instances.Transition(ctx, req.InstanceID, models.CancellableStatuses, models.InstanceUpdate{
		Status:       models.InstanceStatusCancelled,
		ErrorMessage: &message,
		CompletedAt:  &now,
	})
	if err != nil {
		if persistence.IsStatusConflict(err) && instance != nil {
			return instance, fmt.Errorf("%w: instance %s is %s", ErrNotCancellable, req.InstanceID, instance.Status)
		}

		return nil, fmt.Errorf("failed to cancel instance: %w", err)
	}

	e.skipOpenSteps(ctx, instance.ID, now)

	e.logger.InfoContext(ctx, "Instance cancelled", "instance_id", instance.ID, "actor", actor)
	e.publish(ctx, instance, events.InstanceCancelledEvent, message)

	return instance, nil
}

// Wait blocks until every scheduled phase has finished.
func (e *Engine) Wait() error {
	return e.runner.Wait()
}

func (e *Engine) skipOpenSteps(ctx context.Context, instanceID string, now time.Time) {
	steps, err := e.steps.ListByInstance(ctx, instanceID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to list steps of cancelled instance", "instance_id", instanceID, "error", err)

		return
	}

	for _, step := range steps {
		if step.Status != models.StepStatusPending && step.Status != models.StepStatusInProgress {
			continue
		}

		step.Status = models.StepStatusSkipped
		step.CompletedAt = &now

		err := e.steps.Update(ctx, step)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to skip step", "step_id", step.ID, "error", err)
		}
	}
}

func (e *Engine) publish(ctx context.Context, instance *models.WorkflowInstance, eventType events.EventType, message string) {
	err := e.publisher.Publish(ctx, instance.OrganizationID, eventType,
		events.InstancePayload(instance.ID, instance.DefinitionID, string(instance.Status), message))
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"instance_id", instance.ID, "event_type", eventType, "error", err)
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, instance *models.WorkflowInstance) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, e.tracer, name,
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.DefinitionIDKey, instance.DefinitionID),
		attribute.String(otelhelper.OrganizationIDKey, instance.OrganizationID),
	)
}
