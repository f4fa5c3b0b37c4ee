// Package actions executes the side-effecting actions of workflow steps.
package actions

import (
	"context"
	"log/slog"

	"github.com/dukex/custodian/pkg/eventbus"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/notifier"
	"github.com/dukex/custodian/pkg/otelhelper"
	"github.com/dukex/custodian/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ApprovalRequester opens the approval gate of an APPROVE step.
type ApprovalRequester interface {
	RequestApprovals(
		ctx context.Context,
		definition *models.WorkflowDefinition,
		instance *models.WorkflowInstance,
		step *models.WorkflowStep,
		config *models.ApproveConfig,
	) ([]*models.WorkflowApproval, error)
}

// ExecutionRequest carries everything one action needs to run.
type ExecutionRequest struct {
	Definition *models.WorkflowDefinition
	Instance   *models.WorkflowInstance
	Step       *models.WorkflowStep
	Action     models.Action
}

// Executor runs actions. It holds no state between calls.
type Executor struct {
	custody   persistence.CustodyRepository
	directory persistence.DirectoryRepository
	alerts    persistence.AlertRepository
	notifier  notifier.Notifier
	publisher eventbus.Publisher
	approvals ApprovalRequester
	tracer    trace.Tracer
	logger    *slog.Logger
}

func NewExecutor(
	p persistence.Persistence,
	n notifier.Notifier,
	publisher eventbus.Publisher,
	approvals ApprovalRequester,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		custody:   p.CustodyRepository(),
		directory: p.DirectoryRepository(),
		alerts:    p.AlertRepository(),
		notifier:  n,
		publisher: publisher,
		approvals: approvals,
		tracer:    tracer,
		logger:    logger.With("module", "action_executor"),
	}
}

// Execute runs one action. Every failure is returned as an *ActionError.
func (e *Executor) Execute(ctx context.Context, req ExecutionRequest) (models.ActionResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "action.execute",
		attribute.String(otelhelper.ActionTypeKey, string(req.Action.Type)),
		attribute.String(otelhelper.InstanceIDKey, req.Instance.ID),
		attribute.String(otelhelper.StepIDKey, req.Step.ID),
	)
	defer span.End()

	h := &handler{
		Executor: e,
		req:      req,
		logger: e.logger.With(
			"instance_id", req.Instance.ID,
			"step", req.Step.OrderIndex,
			"action", req.Action.Type,
		),
	}

	result, err := req.Action.Dispatch(ctx, h)
	if err != nil {
		actionErr := &ActionError{Action: req.Action.Type, Err: err}
		otelhelper.SetError(span, actionErr, attribute.String(otelhelper.ActionTypeKey, string(req.Action.Type)))

		return models.ActionResult{}, actionErr
	}

	h.logger.DebugContext(ctx, "Action executed", "suspended", result.Suspended)

	return result, nil
}
