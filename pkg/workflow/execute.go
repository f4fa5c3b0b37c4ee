package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/custodian/pkg/actions"
	"github.com/dukex/custodian/pkg/approvals"
	"github.com/dukex/custodian/pkg/conditions"
	"github.com/dukex/custodian/pkg/events"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/otelhelper"
	"github.com/dukex/custodian/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

const conditionsNotMetMessage = "conditions not met"

// execute is the first phase: condition gate, then the actions from the first one.
func (e *Engine) execute(ctx context.Context, instanceID string) error {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to load instance: %w", err)
	}

	ctx, span := e.startSpan(ctx, "instance.execute", instance)
	defer span.End()

	logger := e.logger.With("instance_id", instance.ID, "definition_id", instance.DefinitionID)

	if instance.Status != models.InstanceStatusPending {
		logger.InfoContext(ctx, "Instance already left PENDING, nothing to execute", "status", instance.Status)

		return nil
	}

	definition, err := e.definitions.GetByID(ctx, instance.DefinitionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return e.fail(ctx, logger, instance.ID, models.InstanceStatusPending, fmt.Errorf("failed to load definition: %w", err))
	}

	now := e.now()

	if !conditions.Evaluate(definition.Conditions, instance.Context) {
		message := conditionsNotMetMessage

		instance, err = e.instances.Transition(ctx, instance.ID, []models.InstanceStatus{models.InstanceStatusPending},
			models.InstanceUpdate{
				Status:       models.InstanceStatusCompleted,
				ErrorMessage: &message,
				CompletedAt:  &now,
			})
		if err != nil {
			return e.ignoreConflict(ctx, logger, err)
		}

		logger.InfoContext(ctx, "Conditions not met, instance completed without steps")
		e.publish(ctx, instance, events.InstanceCompletedEvent, message)

		return nil
	}

	instance, err = e.instances.Transition(ctx, instance.ID, []models.InstanceStatus{models.InstanceStatusPending},
		models.InstanceUpdate{
			Status:    models.InstanceStatusInProgress,
			StartedAt: &now,
		})
	if err != nil {
		return e.ignoreConflict(ctx, logger, err)
	}

	logger.InfoContext(ctx, "Instance in progress", "actions", len(definition.Actions))

	return e.runActions(ctx, logger, definition, instance, 0)
}

// resume is the second phase after an approval resolved the gate: the actions
// following the APPROVE step run under EXECUTING.
func (e *Engine) resume(ctx context.Context, instanceID, stepID string) error {
	instance, err := e.instances.Transition(ctx, instanceID, []models.InstanceStatus{models.InstanceStatusApproved},
		models.InstanceUpdate{Status: models.InstanceStatusExecuting})
	if err != nil {
		return e.ignoreConflict(ctx, e.logger.With("instance_id", instanceID), err)
	}

	ctx, span := e.startSpan(ctx, "instance.resume", instance)
	defer span.End()

	logger := e.logger.With("instance_id", instance.ID, "definition_id", instance.DefinitionID)

	definition, err := e.definitions.GetByID(ctx, instance.DefinitionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return e.fail(ctx, logger, instance.ID, models.InstanceStatusExecuting, fmt.Errorf("failed to load definition: %w", err))
	}

	step, err := e.steps.GetByID(ctx, stepID)
	if err != nil {
		return e.fail(ctx, logger, instance.ID, models.InstanceStatusExecuting, fmt.Errorf("failed to load approval step: %w", err))
	}

	logger.InfoContext(ctx, "Resuming after approval", "step", step.OrderIndex)

	return e.runActions(ctx, logger, definition, instance, step.OrderIndex)
}

// runActions executes definition actions from index from, one at a time, while
// the instance stays in its current running status.
func (e *Engine) runActions(
	ctx context.Context,
	logger *slog.Logger,
	definition *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	from int,
) error {
	running := instance.Status

	for i := from; i < len(definition.Actions); i++ {
		var err error

		// the conditional save doubles as the cooperative cancellation check
		instance, err = e.instances.Transition(ctx, instance.ID, []models.InstanceStatus{running},
			models.InstanceUpdate{Context: instance.Context})
		if err != nil {
			return e.ignoreConflict(ctx, logger, err)
		}

		action := definition.Actions[i]

		step, result, err := e.runStep(ctx, definition, instance, action, i+1)
		if err != nil {
			return e.fail(ctx, logger, instance.ID, running, err)
		}

		if result.Suspended {
			return e.suspend(ctx, logger, instance, step)
		}

		instance.Context = recordStepOutput(instance.Context, step.OrderIndex, result.Output)
	}

	now := e.now()

	instance, err := e.instances.Transition(ctx, instance.ID, []models.InstanceStatus{running}, models.InstanceUpdate{
		Status:      models.InstanceStatusCompleted,
		Context:     instance.Context,
		CompletedAt: &now,
	})
	if err != nil {
		return e.ignoreConflict(ctx, logger, err)
	}

	logger.InfoContext(ctx, "Instance completed")
	e.publish(ctx, instance, events.InstanceCompletedEvent, "")

	return nil
}

// runStep stores the step, runs its action and records the result. A suspended
// step stays IN_PROGRESS until its approvals resolve.
func (e *Engine) runStep(
	ctx context.Context,
	definition *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	action models.Action,
	orderIndex int,
) (*models.WorkflowStep, models.ActionResult, error) {
	started := e.now()

	step := &models.WorkflowStep{
		InstanceID: instance.ID,
		ActionType: action.Type,
		OrderIndex: orderIndex,
		Status:     models.StepStatusInProgress,
		StartedAt:  &started,
		ExecutedBy: executedBy(instance),
	}

	input, err := actionInput(action)
	if err != nil {
		return nil, models.ActionResult{}, err
	}

	step.Input = input

	err = e.steps.Create(ctx, step)
	if err != nil {
		return nil, models.ActionResult{}, fmt.Errorf("failed to create step %d: %w", orderIndex, err)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "step.execute",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.Int(otelhelper.StepIndexKey, orderIndex),
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
	)
	defer span.End()

	result, execErr := e.executor.Execute(ctx, actions.ExecutionRequest{
		Definition: definition,
		Instance:   instance,
		Step:       step,
		Action:     action,
	})

	finished := e.now()

	switch {
	case execErr != nil:
		otelhelper.SetError(span, execErr)

		step.Status = models.StepStatusFailed
		step.ErrorMessage = execErr.Error()
		step.CompletedAt = &finished
	case result.Suspended:
		step.Output = result.Output
	default:
		step.Status = models.StepStatusCompleted
		step.Output = result.Output
		step.CompletedAt = &finished
	}

	err = e.steps.Update(ctx, step)
	if err != nil {
		if execErr != nil {
			return step, result, errors.Join(execErr, err)
		}

		return step, result, fmt.Errorf("failed to record step %d: %w", orderIndex, err)
	}

	return step, result, execErr
}

// suspend ends the unit of work at the approval boundary.
func (e *Engine) suspend(
	ctx context.Context,
	logger *slog.Logger,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
) error {
	running := instance.Status

	instance, err := e.instances.Transition(ctx, instance.ID, []models.InstanceStatus{running}, models.InstanceUpdate{
		Status:  models.InstanceStatusAwaitingApproval,
		Context: instance.Context,
	})
	if err != nil {
		return e.ignoreConflict(ctx, logger, err)
	}

	logger.InfoContext(ctx, "Instance awaiting approval", "step", step.OrderIndex)
	e.publish(ctx, instance, events.InstanceAwaitingApprovalEvent, "")

	return e.reconcile(ctx, instance, step)
}

// reconcile applies decisions that were recorded before the instance reached AWAITING_APPROVAL.
func (e *Engine) reconcile(ctx context.Context, instance *models.WorkflowInstance, step *models.WorkflowStep) error {
	all, err := e.approvals.ListByInstance(ctx, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	siblings := make([]*models.WorkflowApproval, 0, len(all))
	for _, a := range all {
		if a.StepID == step.ID {
			siblings = append(siblings, a)
		}
	}

	outcome, _ := approvals.Aggregate(siblings, approvals.RequiredCount(step))
	if outcome == approvals.OutcomePending {
		return nil
	}

	return e.applyOutcome(ctx, instance.ID, step.ID, outcome, "")
}

// applyOutcome moves an AWAITING_APPROVAL instance to REJECTED or APPROVED. The
// first resolving decision wins; any other is recorded without a transition.
func (e *Engine) applyOutcome(ctx context.Context, instanceID, stepID string, outcome approvals.Outcome, actor string) error {
	logger := e.logger.With("instance_id", instanceID, "step_id", stepID)
	now := e.now()

	switch outcome {
	case approvals.OutcomePending:
		return nil
	case approvals.OutcomeRejected:
		message := "rejected"
		if actor != "" {
			message += " by " + actor
		}

		instance, err := e.instances.Transition(ctx, instanceID,
			[]models.InstanceStatus{models.InstanceStatusAwaitingApproval},
			models.InstanceUpdate{
				Status:       models.InstanceStatusRejected,
				ErrorMessage: &message,
				CompletedAt:  &now,
			})
		if err != nil {
			return e.ignoreConflict(ctx, logger, err)
		}

		e.finishApprovalStep(ctx, logger, stepID, outcome)

		logger.InfoContext(ctx, "Instance rejected")
		e.publish(ctx, instance, events.InstanceRejectedEvent, message)

		return nil
	case approvals.OutcomeApproved:
		_, err := e.instances.Transition(ctx, instanceID,
			[]models.InstanceStatus{models.InstanceStatusAwaitingApproval},
			models.InstanceUpdate{Status: models.InstanceStatusApproved})
		if err != nil {
			return e.ignoreConflict(ctx, logger, err)
		}

		e.finishApprovalStep(ctx, logger, stepID, outcome)

		logger.InfoContext(ctx, "Instance approved, scheduling resume")
		e.runner.Submit(ctx, "resume "+instanceID, func(ctx context.Context) error {
			return e.resume(ctx, instanceID, stepID)
		})

		return nil
	default:
		return fmt.Errorf("unknown approval outcome %q", outcome)
	}
}

func (e *Engine) finishApprovalStep(ctx context.Context, logger *slog.Logger, stepID string, outcome approvals.Outcome) {
	step, err := e.steps.GetByID(ctx, stepID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load approval step", "error", err)

		return
	}

	now := e.now()

	if step.Output == nil {
		step.Output = make(map[string]any)
	}

	step.Output["outcome"] = string(outcome)
	step.Status = models.StepStatusCompleted
	step.CompletedAt = &now

	err = e.steps.Update(ctx, step)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to complete approval step", "error", err)
	}
}

// fail marks the instance FAILED. The cause stays on the instance, it is not returned.
func (e *Engine) fail(
	ctx context.Context,
	logger *slog.Logger,
	instanceID string,
	from models.InstanceStatus,
	cause error,
) error {
	message := cause.Error()
	now := e.now()

	instance, err := e.instances.Transition(ctx, instanceID, []models.InstanceStatus{from}, models.InstanceUpdate{
		Status:       models.InstanceStatusFailed,
		ErrorMessage: &message,
		CompletedAt:  &now,
	})
	if err != nil {
		return e.ignoreConflict(ctx, logger, err)
	}

	logger.WarnContext(ctx, "Instance failed", "error", cause)
	e.publish(ctx, instance, events.InstanceFailedEvent, message)

	return nil
}

// ignoreConflict treats a lost compare-and-set as a normal stop: another actor
// (a cancel or a competing decision) already moved the instance.
func (e *Engine) ignoreConflict(ctx context.Context, logger *slog.Logger, err error) error {
	if persistence.IsStatusConflict(err) {
		logger.InfoContext(ctx, "Instance status changed concurrently, stopping")

		return nil
	}

	return err
}

func executedBy(instance *models.WorkflowInstance) string {
	if instance.TriggeredBy == "" {
		return models.SystemActor
	}

	return instance.TriggeredBy
}
