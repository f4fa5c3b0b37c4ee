package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	fp := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)

	fp = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	require.NoError(t, fp.HealthCheck(t.Context()))

	missing := NewPersistence(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, missing.HealthCheck(t.Context()))
}

func TestDefinitionRepository_SaveGetAndSoftDelete(t *testing.T) {
	testDir := t.TempDir()
	repo := NewPersistence(testDir).DefinitionRepository()
	ctx := t.Context()

	definition := &models.WorkflowDefinition{
		ID:             "def-1",
		Name:           "Quarantine on breach",
		OrganizationID: "org-1",
		TriggerKind:    models.TriggerKindManual,
		Actions: []models.Action{
			models.NewAction(&models.QuarantineConfig{Reason: "breach"}),
		},
		Active:  true,
		Version: 1,
	}

	require.NoError(t, repo.Save(ctx, definition))
	assert.FileExists(t, filepath.Join(testDir, "definitions", "def-1.json"))

	retrieved, err := repo.GetByID(ctx, "def-1")
	require.NoError(t, err)
	require.Len(t, retrieved.Actions, 1)

	quarantine, ok := retrieved.Actions[0].Config.(*models.QuarantineConfig)
	require.True(t, ok)
	assert.Equal(t, "breach", quarantine.Reason)
	assert.Equal(t, models.DefaultQuarantineLocation, quarantine.Location())

	require.NoError(t, repo.Delete(ctx, "def-1"))

	listed, err := repo.List(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, listed)

	deleted, err := repo.GetByID(ctx, "def-1")
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)
	assert.False(t, deleted.Active)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
	assert.True(t, persistence.IsNotFound(err))
}

func TestDefinitionRepository_ListActiveByTriggerKind(t *testing.T) {
	repo := NewPersistence(t.TempDir()).DefinitionRepository()
	ctx := t.Context()

	action := []models.Action{models.NewAction(&models.AlertConfig{Message: "x"})}

	for _, d := range []*models.WorkflowDefinition{
		{ID: "low", Name: "low", OrganizationID: "org-1", TriggerKind: models.TriggerKindSchedule, Actions: action, Active: true},
		{ID: "high", Name: "high", OrganizationID: "org-1", TriggerKind: models.TriggerKindSchedule, Actions: action, Active: true, Priority: 5},
		{ID: "off", Name: "off", OrganizationID: "org-1", TriggerKind: models.TriggerKindSchedule, Actions: action},
		{ID: "manual", Name: "manual", OrganizationID: "org-1", TriggerKind: models.TriggerKindManual, Actions: action, Active: true},
	} {
		require.NoError(t, repo.Save(ctx, d))
	}

	definitions, err := repo.ListActiveByTriggerKind(ctx, models.TriggerKindSchedule)
	require.NoError(t, err)
	require.Len(t, definitions, 2)
	assert.Equal(t, "high", definitions[0].ID)
	assert.Equal(t, "low", definitions[1].ID)
}

func TestInstanceRepository_Transition(t *testing.T) {
	repo := NewPersistence(t.TempDir()).InstanceRepository()
	ctx := t.Context()

	instance := &models.WorkflowInstance{
		DefinitionID:   "def-1",
		OrganizationID: "org-1",
		Status:         models.InstanceStatusPending,
		TriggerKind:    models.TriggerKindManual,
	}
	require.NoError(t, repo.Create(ctx, instance))
	require.ErrorIs(t, repo.Create(ctx, instance), persistence.ErrAlreadyExists)

	message := "cancelled by user-1"
	updated, err := repo.Transition(ctx, instance.ID, models.CancellableStatuses, models.InstanceUpdate{
		Status:       models.InstanceStatusCancelled,
		ErrorMessage: &message,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, updated.Status)
	assert.Equal(t, message, updated.ErrorMessage)

	current, err := repo.Transition(ctx, instance.ID, models.CancellableStatuses, models.InstanceUpdate{
		Status: models.InstanceStatusCompleted,
	})
	require.ErrorIs(t, err, persistence.ErrStatusConflict)
	assert.True(t, persistence.IsStatusConflict(err))
	assert.Equal(t, models.InstanceStatusCancelled, current.Status)

	_, err = repo.Transition(ctx, "missing", models.CancellableStatuses, models.InstanceUpdate{})
	require.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func TestInstanceRepository_ConcurrentTransitionHasOneWinner(t *testing.T) {
	repo := NewPersistence(t.TempDir()).InstanceRepository()
	ctx := t.Context()

	instance := &models.WorkflowInstance{
		DefinitionID: "def-1",
		Status:       models.InstanceStatusAwaitingApproval,
		TriggerKind:  models.TriggerKindManual,
	}
	require.NoError(t, repo.Create(ctx, instance))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []models.InstanceStatus
	)

	for _, target := range []models.InstanceStatus{
		models.InstanceStatusApproved,
		models.InstanceStatusRejected,
		models.InstanceStatusCancelled,
	} {
		wg.Add(1)

		go func(target models.InstanceStatus) {
			defer wg.Done()

			_, err := repo.Transition(ctx, instance.ID,
				[]models.InstanceStatus{models.InstanceStatusAwaitingApproval},
				models.InstanceUpdate{Status: target})
			if err == nil {
				mu.Lock()
				winners = append(winners, target)
				mu.Unlock()
			}
		}(target)
	}

	wg.Wait()
	require.Len(t, winners, 1)

	stored, err := repo.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], stored.Status)
}

func TestStepRepository_FinalStepsAreImmutable(t *testing.T) {
	repo := NewPersistence(t.TempDir()).StepRepository()
	ctx := t.Context()

	step := &models.WorkflowStep{
		InstanceID: "inst-1",
		ActionType: models.ActionTypeApprove,
		OrderIndex: 2,
		Status:     models.StepStatusInProgress,
	}
	require.NoError(t, repo.Create(ctx, step))

	step.Status = models.StepStatusSkipped
	require.NoError(t, repo.Update(ctx, step))

	step.Status = models.StepStatusCompleted
	require.NoError(t, repo.Update(ctx, step))

	step.Status = models.StepStatusFailed
	require.ErrorIs(t, repo.Update(ctx, step), persistence.ErrStepFinalized)

	first := &models.WorkflowStep{InstanceID: "inst-1", ActionType: models.ActionTypeAlert, OrderIndex: 0, Status: models.StepStatusCompleted}
	require.NoError(t, repo.Create(ctx, first))

	steps, err := repo.ListByInstance(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].OrderIndex)
	assert.Equal(t, 2, steps[1].OrderIndex)
}

func TestApprovalRepository_Decide(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ApprovalRepository()
	ctx := t.Context()

	past := time.Now().UTC().Add(-time.Minute)
	approvals := []*models.WorkflowApproval{
		{InstanceID: "inst-1", ApproverID: "u1", Status: models.ApprovalStatusPending, Required: true, Deadline: &past},
		{InstanceID: "inst-1", ApproverID: "u2", Status: models.ApprovalStatusPending, Required: true},
	}
	require.NoError(t, repo.CreateBatch(ctx, approvals))

	expired, err := repo.ListExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, approvals[0].ID, expired[0].ID)

	decided, err := repo.Decide(ctx, approvals[0].ID, models.ApprovalStatusRejected, "expired", models.SystemActor, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusRejected, decided.Status)

	_, err = repo.Decide(ctx, approvals[0].ID, models.ApprovalStatusApproved, "", "u1", time.Now().UTC())
	require.ErrorIs(t, err, persistence.ErrApprovalDecided)

	expired, err = repo.ListExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestCustodyRepository_RecordMovement(t *testing.T) {
	testDir := t.TempDir()
	repo := NewPersistence(testDir).CustodyRepository()
	ctx := t.Context()

	require.NoError(t, repo.SaveLocation(ctx, &models.Location{ID: "dock", OrganizationID: "org-1", Name: "Dock"}))
	require.NoError(t, repo.SaveLocation(ctx, &models.Location{ID: "q", OrganizationID: "org-1", Name: "Quarantine"}))
	require.NoError(t, repo.SaveAsset(ctx, &models.Asset{
		ID: "asset-1", OrganizationID: "org-1", Name: "Crate", CurrentLocationID: "dock", Status: models.AssetStatusActive,
	}))

	location, err := repo.FindLocationByName(ctx, "org-1", "QUARANTINE")
	require.NoError(t, err)
	assert.Equal(t, "q", location.ID)

	_, err = repo.FindLocationByName(ctx, "org-2", "Quarantine")
	require.ErrorIs(t, err, persistence.ErrLocationNotFound)

	asset, err := repo.RecordMovement(ctx, &models.Movement{
		OrganizationID: "org-1",
		AssetID:        "asset-1",
		ToLocationID:   "q",
		Kind:           models.MovementKindQuarantine,
		ActorID:        models.SystemActor,
	}, models.AssetStatusQuarantined)
	require.NoError(t, err)
	assert.Equal(t, "q", asset.CurrentLocationID)
	assert.Equal(t, models.AssetStatusQuarantined, asset.Status)

	movements, err := repo.MovementsByAsset(ctx, "asset-1")
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "dock", movements[0].FromLocationID)

	_, err = repo.RecordMovement(ctx, &models.Movement{AssetID: "missing", ToLocationID: "q"}, models.AssetStatusActive)
	require.ErrorIs(t, err, persistence.ErrAssetNotFound)

	_, err = repo.RecordMovement(ctx, &models.Movement{AssetID: "asset-1", ToLocationID: "nowhere"}, models.AssetStatusActive)
	require.ErrorIs(t, err, persistence.ErrLocationNotFound)

	entries, err := os.ReadDir(filepath.Join(testDir, "movements"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCustodyRepository_UpdateAsset(t *testing.T) {
	repo := NewPersistence(t.TempDir()).CustodyRepository()
	ctx := t.Context()

	asset := &models.Asset{ID: "asset-1", OrganizationID: "org-1", Name: "Crate", Status: models.AssetStatusActive}
	require.NoError(t, repo.SaveAsset(ctx, asset))

	asset.Status = models.AssetStatusDestroyed
	require.NoError(t, repo.UpdateAsset(ctx, asset, &models.AuditRecord{
		EntityType: "asset",
		EntityID:   "asset-1",
		Action:     "UPDATE",
		ActorID:    models.SystemActor,
		OldValues:  map[string]any{"status": "ACTIVE"},
		NewValues:  map[string]any{"status": "DESTROYED"},
	}))

	stored, err := repo.GetAsset(ctx, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusDestroyed, stored.Status)

	records, err := repo.AuditByEntity(ctx, "asset-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ACTIVE", records[0].OldValues["status"])

	err = repo.UpdateAsset(ctx, &models.Asset{ID: "missing"}, &models.AuditRecord{})
	require.ErrorIs(t, err, persistence.ErrAssetNotFound)
}

func TestDirectoryRepository_ActiveUsersByRole(t *testing.T) {
	repo := NewPersistence(t.TempDir()).DirectoryRepository()
	ctx := t.Context()

	for _, user := range []*models.User{
		{ID: "u2", OrganizationID: "org-1", Roles: []string{"manager"}, Active: true},
		{ID: "u1", OrganizationID: "org-1", Roles: []string{"qa", "manager"}, Active: true},
		{ID: "u3", OrganizationID: "org-1", Roles: []string{"manager"}},
		{ID: "u4", OrganizationID: "org-2", Roles: []string{"manager"}, Active: true},
	} {
		require.NoError(t, repo.SaveUser(ctx, user))
	}

	users, err := repo.ActiveUsersByRole(ctx, "org-1", "manager")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u2", users[1].ID)

	none, err := repo.ActiveUsersByRole(ctx, "org-1", "auditor")
	require.NoError(t, err)
	assert.Empty(t, none)
}
