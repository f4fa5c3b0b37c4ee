// Package approvals coordinates human sign-off requests for APPROVE actions.
package approvals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/custodian/pkg/conditions"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/notifier"
	"github.com/dukex/custodian/pkg/persistence"
)

// Outcome is the aggregate state of the approvals of one APPROVE step.
type Outcome string

const (
	OutcomePending  Outcome = "PENDING"
	OutcomeApproved Outcome = "APPROVED"
	OutcomeRejected Outcome = "REJECTED"
)

// RequiredApprovalsKey is the step input key holding how many approvals resolve the gate.
const RequiredApprovalsKey = "required_approvals"

type DecideRequest struct {
	ApprovalID string
	Decision   models.ApprovalStatus
	Comments   string
	Actor      string
}

type DecideResult struct {
	Approval *models.WorkflowApproval
	Outcome  Outcome
	Approved int
	Required int
}

type Coordinator struct {
	approvals persistence.ApprovalRepository
	steps     persistence.StepRepository
	directory persistence.DirectoryRepository
	notifier  notifier.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewCoordinator(p persistence.Persistence, n notifier.Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		approvals: p.ApprovalRepository(),
		steps:     p.StepRepository(),
		directory: p.DirectoryRepository(),
		notifier:  n,
		logger:    logger.With("module", "approval_coordinator"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RequestApprovals creates one pending approval per active user holding any of
// the approver roles in the definition's organization and notifies each of them.
func (c *Coordinator) RequestApprovals(
	ctx context.Context,
	definition *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	config *models.ApproveConfig,
) ([]*models.WorkflowApproval, error) {
	logger := c.logger.With("instance_id", instance.ID, "step_id", step.ID)

	approvers, err := ResolveUsers(ctx, c.directory, definition.OrganizationID, config.ApproverRoles)
	if err != nil {
		return nil, err
	}

	if len(approvers) == 0 {
		return nil, fmt.Errorf("%w for roles %v", ErrNoApprovers, config.ApproverRoles)
	}

	now := c.now()

	var deadline *time.Time

	if config.DeadlineMinutes > 0 {
		d := now.Add(time.Duration(config.DeadlineMinutes) * time.Minute)
		deadline = &d
	}

	approvals := make([]*models.WorkflowApproval, 0, len(approvers))
	for _, approver := range approvers {
		approvals = append(approvals, &models.WorkflowApproval{
			InstanceID: instance.ID,
			StepID:     step.ID,
			ApproverID: approver.ID,
			Status:     models.ApprovalStatusPending,
			Required:   true,
			Deadline:   deadline,
			CreatedAt:  now,
		})
	}

	err = c.approvals.CreateBatch(ctx, approvals)
	if err != nil {
		return nil, fmt.Errorf("failed to create approvals: %w", err)
	}

	message := config.Message
	if message == "" {
		message = fmt.Sprintf("Workflow %q requires your approval", definition.Name)
	}

	for _, approval := range approvals {
		err := c.notifier.Notify(ctx, notifier.Notification{
			UserID:  approval.ApproverID,
			Kind:    notifier.KindApprovalRequired,
			Title:   "Approval required: " + definition.Name,
			Message: message,
			Data: map[string]any{
				"approval_id":       approval.ID,
				"instance_id":       instance.ID,
				"workflow_name":     definition.Name,
				"related_entity_id": relatedEntity(instance),
			},
		})
		if err != nil {
			logger.WarnContext(ctx, "Failed to notify approver", "approver_id", approval.ApproverID, "error", err)
		}
	}

	logger.InfoContext(ctx, "Approvals requested", "approvers", len(approvals), "required", config.Required())

	return approvals, nil
}

// Decide records a decision exactly once and computes the outcome of the approval's step.
func (c *Coordinator) Decide(ctx context.Context, req DecideRequest) (*DecideResult, error) {
	if req.Decision != models.ApprovalStatusApproved && req.Decision != models.ApprovalStatusRejected {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, req.Decision)
	}

	approval, err := c.approvals.GetByID(ctx, req.ApprovalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}

	if req.Actor != approval.ApproverID && req.Actor != models.SystemActor {
		return nil, fmt.Errorf("%w: %s", ErrNotApprover, req.Actor)
	}

	approval, err = c.approvals.Decide(ctx, approval.ID, req.Decision, req.Comments, req.Actor, c.now())
	if err != nil {
		if errors.Is(err, persistence.ErrApprovalDecided) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyDecided, req.ApprovalID)
		}

		return nil, fmt.Errorf("failed to record decision: %w", err)
	}

	c.logger.InfoContext(ctx, "Decision recorded",
		"approval_id", approval.ID,
		"instance_id", approval.InstanceID,
		"decision", approval.Status,
		"actor", req.Actor,
	)

	return c.outcome(ctx, approval)
}

func (c *Coordinator) outcome(ctx context.Context, approval *models.WorkflowApproval) (*DecideResult, error) {
	required := 1

	if approval.StepID != "" {
		step, err := c.steps.GetByID(ctx, approval.StepID)
		if err != nil {
			return nil, fmt.Errorf("failed to get approval step: %w", err)
		}

		required = RequiredCount(step)
	}

	all, err := c.approvals.ListByInstance(ctx, approval.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	siblings := make([]*models.WorkflowApproval, 0, len(all))
	for _, a := range all {
		if a.StepID == approval.StepID {
			siblings = append(siblings, a)
		}
	}

	outcome, approved := Aggregate(siblings, required)

	return &DecideResult{
		Approval: approval,
		Outcome:  outcome,
		Approved: approved,
		Required: required,
	}, nil
}

// Aggregate applies the decision rule: any required rejection rejects, enough
// required approvals approve, anything else is still pending.
func Aggregate(approvals []*models.WorkflowApproval, required int) (Outcome, int) {
	approved := 0

	for _, a := range approvals {
		if !a.Required {
			continue
		}

		switch a.Status {
		case models.ApprovalStatusRejected:
			return OutcomeRejected, approved
		case models.ApprovalStatusApproved:
			approved++
		case models.ApprovalStatusPending:
		}
	}

	if approved >= required {
		return OutcomeApproved, approved
	}

	return OutcomePending, approved
}

// RequiredCount reads the required approval count from the APPROVE step input.
func RequiredCount(step *models.WorkflowStep) int {
	n, ok := conditions.Number(step.Input[RequiredApprovalsKey])
	if !ok || n < 1 {
		return 1
	}

	return int(n)
}

// ResolveUsers returns the active users of the organization holding any of the
// roles, each user once, in role order.
func ResolveUsers(
	ctx context.Context,
	directory persistence.DirectoryRepository,
	organizationID string,
	roles []string,
) ([]*models.User, error) {
	seen := make(map[string]struct{})
	users := make([]*models.User, 0)

	for _, role := range roles {
		members, err := directory.ActiveUsersByRole(ctx, organizationID, role)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve users for role %s: %w", role, err)
		}

		for _, member := range members {
			if _, ok := seen[member.ID]; ok {
				continue
			}

			seen[member.ID] = struct{}{}
			users = append(users, member)
		}
	}

	return users, nil
}

func relatedEntity(instance *models.WorkflowInstance) string {
	if instance.RelatedEntityID == nil {
		return ""
	}

	return *instance.RelatedEntityID
}
