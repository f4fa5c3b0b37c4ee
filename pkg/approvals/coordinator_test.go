package approvals_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/dukex/custodian/pkg/approvals"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/notifier"
	"github.com/dukex/custodian/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, notification notifier.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, notification)

	return n.err
}

type fixture struct {
	persistence *file.Persistence
	notifier    *recordingNotifier
	coordinator *approvals.Coordinator
	definition  *models.WorkflowDefinition
	instance    *models.WorkflowInstance
	step        *models.WorkflowStep
}

func newFixture(t *testing.T, required int, users ...*models.User) *fixture {
	t.Helper()

	ctx := t.Context()
	p := file.NewPersistence(t.TempDir())
	n := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	for _, u := range users {
		require.NoError(t, p.DirectoryRepository().SaveUser(ctx, u))
	}

	definition := &models.WorkflowDefinition{ID: "def-1", Name: "Quarantine approval", OrganizationID: "org-1"}
	instance := &models.WorkflowInstance{
		DefinitionID:   definition.ID,
		OrganizationID: "org-1",
		Status:         models.InstanceStatusAwaitingApproval,
	}
	require.NoError(t, p.InstanceRepository().Create(ctx, instance))

	step := &models.WorkflowStep{
		InstanceID: instance.ID,
		ActionType: models.ActionTypeApprove,
		OrderIndex: 1,
		Status:     models.StepStatusInProgress,
		Input:      map[string]any{approvals.RequiredApprovalsKey: float64(required)},
	}
	require.NoError(t, p.StepRepository().Create(ctx, step))

	return &fixture{
		persistence: p,
		notifier:    n,
		coordinator: approvals.NewCoordinator(p, n, logger),
		definition:  definition,
		instance:    instance,
		step:        step,
	}
}

func user(id string, active bool, roles ...string) *models.User {
	return &models.User{ID: id, OrganizationID: "org-1", Name: id, Roles: roles, Active: active}
}

func (f *fixture) request(t *testing.T, config *models.ApproveConfig) []*models.WorkflowApproval {
	t.Helper()

	created, err := f.coordinator.RequestApprovals(t.Context(), f.definition, f.instance, f.step, config)
	require.NoError(t, err)

	return created
}

func TestRequestApprovals_OnePerResolvedUser(t *testing.T) {
	f := newFixture(t, 2,
		user("u1", true, "supervisor"),
		user("u2", true, "supervisor", "qa"),
		user("u3", true, "qa"),
		user("u4", false, "qa"),
		&models.User{ID: "u5", OrganizationID: "org-2", Roles: []string{"qa"}, Active: true},
	)

	created := f.request(t, &models.ApproveConfig{
		ApproverRoles:     []string{"supervisor", "qa"},
		RequiredApprovals: 2,
		DeadlineMinutes:   30,
	})

	require.Len(t, created, 3)

	ids := []string{created[0].ApproverID, created[1].ApproverID, created[2].ApproverID}
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, ids)

	for _, a := range created {
		assert.Equal(t, models.ApprovalStatusPending, a.Status)
		assert.True(t, a.Required)
		assert.Equal(t, f.step.ID, a.StepID)
		require.NotNil(t, a.Deadline)
	}

	stored, err := f.persistence.ApprovalRepository().ListByInstance(t.Context(), f.instance.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	require.Len(t, f.notifier.sent, 3)
	assert.Equal(t, notifier.KindApprovalRequired, f.notifier.sent[0].Kind)
	assert.Equal(t, f.instance.ID, f.notifier.sent[0].Data["instance_id"])
}

func TestRequestApprovals_NoApprovers(t *testing.T) {
	f := newFixture(t, 1, user("u1", false, "supervisor"))

	_, err := f.coordinator.RequestApprovals(t.Context(), f.definition, f.instance, f.step,
		&models.ApproveConfig{ApproverRoles: []string{"supervisor"}})

	require.ErrorIs(t, err, approvals.ErrNoApprovers)
	assert.Empty(t, f.notifier.sent)
}

func TestRequestApprovals_NotifierFailureIsIgnored(t *testing.T) {
	f := newFixture(t, 1, user("u1", true, "supervisor"))
	f.notifier.err = errors.New("smtp down")

	created := f.request(t, &models.ApproveConfig{ApproverRoles: []string{"supervisor"}})

	assert.Len(t, created, 1)
	assert.Nil(t, created[0].Deadline)
}

func TestDecide_RequiredCountReached(t *testing.T) {
	f := newFixture(t, 2, user("u1", true, "qa"), user("u2", true, "qa"), user("u3", true, "qa"))
	created := f.request(t, &models.ApproveConfig{ApproverRoles: []string{"qa"}, RequiredApprovals: 2})

	first, err := f.coordinator.Decide(t.Context(), approvals.DecideRequest{
		ApprovalID: created[0].ID, Decision: models.ApprovalStatusApproved, Actor: created[0].ApproverID,
	})
	require.NoError(t, err)
	assert.Equal(t, approvals.OutcomePending, first.Outcome)
	assert.Equal(t, 1, first.Approved)
	assert.Equal(t, 2, first.Required)

	second, err := f.coordinator.Decide(t.Context(), approvals.DecideRequest{
		ApprovalID: created[1].ID, Decision: models.ApprovalStatusApproved, Actor: created[1].ApproverID, Comments: "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, approvals.OutcomeApproved, second.Outcome)
	assert.Equal(t, "ok", second.Approval.Comments)
	require.NotNil(t, second.Approval.DecidedAt)
}

func TestDecide_AnyRejectionWins(t *testing.T) {
	f := newFixture(t, 2, user("u1", true, "qa"), user("u2", true, "qa"), user("u3", true, "qa"))
	created := f.request(t, &models.ApproveConfig{ApproverRoles: []string{"qa"}, RequiredApprovals: 2})

	_, err := f.coordinator.Decide(t.Context(), approvals.DecideRequest{
		ApprovalID: created[0].ID, Decision: models.ApprovalStatusApproved, Actor: created[0].ApproverID,
	})
	require.NoError(t, err)

	result, err := f.coordinator.Decide(t.Context(), approvals.DecideRequest{
		ApprovalID: created[1].ID, Decision: models.ApprovalStatusRejected, Actor: created[1].ApproverID,
	})
	require.NoError(t, err)
	assert.Equal(t, approvals.OutcomeRejected, result.Outcome)

	pending, err := f.persistence.ApprovalRepository().GetByID(t.Context(), created[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, pending.Status)
}

func TestDecide_Errors(t *testing.T) {
	f := newFixture(t, 1, user("u1", true, "qa"), user("u2", true, "qa"))
	created := f.request(t, &models.ApproveConfig{ApproverRoles: []string{"qa"}})

	t.Run("invalid decision", func(t *testing.T) {
		_, err := f.coordinator.Decide(t.Context(), approvals.DecideRequest{
			ApprovalID: created[0].ID, Decision: models.ApprovalStatusPending, Actor: created[0].ApproverID,
		})
		require.ErrorIs(t, err, approvals.ErrInvalidDecision)
	})

	t.Run("someone else decides", func(t *testing.T) {
		_, err := f.coordinator.Decide(t.Context(), approvals.DecideRequest{
			ApprovalID: created[0].ID, Decision: models.ApprovalStatusApproved, Actor: created[1].ApproverID,
		})
		require.ErrorIs(t, err, approvals.ErrNotApprover)
	})

	t.Run("decided twice", func(t *testing.T) {
		req := approvals.DecideRequest{
			ApprovalID: created[0].ID, Decision: models.ApprovalStatusApproved, Actor: created[0].ApproverID,
		}

		_, err := f.coordinator.Decide(t.Context(), req)
		require.NoError(t, err)

		req.Decision = models.ApprovalStatusRejected
		_, err = f.coordinator.Decide(t.Context(), req)
		require.ErrorIs(t, err, approvals.ErrAlreadyDecided)
	})

	t.Run("system actor may decide", func(t *testing.T) {
		result, err := f.coordinator.Decide(t.Context(), approvals.DecideRequest{
			ApprovalID: created[1].ID, Decision: models.ApprovalStatusRejected, Actor: models.SystemActor,
		})
		require.NoError(t, err)
		assert.Equal(t, models.SystemActor, result.Approval.DecidedBy)
	})
}

func TestAggregate(t *testing.T) {
	approval := func(status models.ApprovalStatus, required bool) *models.WorkflowApproval {
		return &models.WorkflowApproval{Status: status, Required: required}
	}

	tests := []struct {
		name      string
		approvals []*models.WorkflowApproval
		required  int
		expected  approvals.Outcome
	}{
		{"all pending", []*models.WorkflowApproval{
			approval(models.ApprovalStatusPending, true),
		}, 1, approvals.OutcomePending},
		{"enough approved", []*models.WorkflowApproval{
			approval(models.ApprovalStatusApproved, true),
			approval(models.ApprovalStatusApproved, true),
			approval(models.ApprovalStatusPending, true),
		}, 2, approvals.OutcomeApproved},
		{"rejection beats approvals", []*models.WorkflowApproval{
			approval(models.ApprovalStatusApproved, true),
			approval(models.ApprovalStatusApproved, true),
			approval(models.ApprovalStatusRejected, true),
		}, 2, approvals.OutcomeRejected},
		{"optional approvals do not count", []*models.WorkflowApproval{
			approval(models.ApprovalStatusApproved, false),
			approval(models.ApprovalStatusRejected, false),
			approval(models.ApprovalStatusApproved, true),
		}, 2, approvals.OutcomePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, _ := approvals.Aggregate(tt.approvals, tt.required)
			assert.Equal(t, tt.expected, outcome)
		})
	}
}

func TestRequiredCount(t *testing.T) {
	assert.Equal(t, 3, approvals.RequiredCount(&models.WorkflowStep{Input: map[string]any{"required_approvals": float64(3)}}))
	assert.Equal(t, 1, approvals.RequiredCount(&models.WorkflowStep{Input: map[string]any{"required_approvals": 0}}))
	assert.Equal(t, 1, approvals.RequiredCount(&models.WorkflowStep{}))
}
