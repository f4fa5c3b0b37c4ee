package postgresql_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceRepository_Transition(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := testDefinition("Transitions", models.TriggerKindManual)
	require.NoError(t, p.DefinitionRepository().Save(ctx, definition))

	repo := p.InstanceRepository()
	instance := &models.WorkflowInstance{
		DefinitionID:   definition.ID,
		OrganizationID: "org-1",
		Status:         models.InstanceStatusPending,
		TriggerKind:    models.TriggerKindManual,
		TriggerPayload: map[string]any{"reason": "audit"},
		TriggeredBy:    "user-1",
	}
	require.NoError(t, repo.Create(ctx, instance))

	err := repo.Create(ctx, instance)
	require.ErrorIs(t, err, persistence.ErrAlreadyExists)

	now := time.Now().UTC()
	updated, err := repo.Transition(ctx, instance.ID,
		[]models.InstanceStatus{models.InstanceStatusPending},
		models.InstanceUpdate{
			Status:    models.InstanceStatusInProgress,
			Context:   map[string]any{"reason": "audit", "steps": map[string]any{}},
			StartedAt: &now,
		})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, updated.Status)
	assert.Equal(t, "audit", updated.Context["reason"])
	assert.NotNil(t, updated.StartedAt)

	current, err := repo.Transition(ctx, instance.ID,
		[]models.InstanceStatus{models.InstanceStatusPending},
		models.InstanceUpdate{Status: models.InstanceStatusCancelled})
	require.ErrorIs(t, err, persistence.ErrStatusConflict)
	require.NotNil(t, current)
	assert.Equal(t, models.InstanceStatusInProgress, current.Status)

	_, err = repo.Transition(ctx, "missing",
		[]models.InstanceStatus{models.InstanceStatusPending},
		models.InstanceUpdate{Status: models.InstanceStatusCancelled})
	require.ErrorIs(t, err, persistence.ErrInstanceNotFound)

	open, err := repo.ListByStatus(ctx, models.OpenStatuses...)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, instance.ID, open[0].ID)
}

func TestInstanceRepository_ConcurrentTransitionHasOneWinner(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := testDefinition("Race", models.TriggerKindManual)
	require.NoError(t, p.DefinitionRepository().Save(ctx, definition))

	repo := p.InstanceRepository()
	instance := &models.WorkflowInstance{
		DefinitionID:   definition.ID,
		OrganizationID: "org-1",
		Status:         models.InstanceStatusAwaitingApproval,
		TriggerKind:    models.TriggerKindManual,
	}
	require.NoError(t, repo.Create(ctx, instance))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for _, target := range []models.InstanceStatus{
		models.InstanceStatusApproved,
		models.InstanceStatusRejected,
		models.InstanceStatusCancelled,
		models.InstanceStatusApproved,
	} {
		wg.Add(1)

		go func(target models.InstanceStatus) {
			defer wg.Done()

			_, err := repo.Transition(ctx, instance.ID,
				[]models.InstanceStatus{models.InstanceStatusAwaitingApproval},
				models.InstanceUpdate{Status: target})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(target)
	}

	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestStepRepository_FinalStepsAreImmutable(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := testDefinition("Steps", models.TriggerKindManual)
	require.NoError(t, p.DefinitionRepository().Save(ctx, definition))

	instance := &models.WorkflowInstance{
		DefinitionID:   definition.ID,
		OrganizationID: "org-1",
		Status:         models.InstanceStatusInProgress,
		TriggerKind:    models.TriggerKindManual,
	}
	require.NoError(t, p.InstanceRepository().Create(ctx, instance))

	repo := p.StepRepository()
	now := time.Now().UTC()

	second := &models.WorkflowStep{
		InstanceID: instance.ID,
		ActionType: models.ActionTypeNotify,
		OrderIndex: 1,
		Status:     models.StepStatusInProgress,
		StartedAt:  &now,
	}
	first := &models.WorkflowStep{
		InstanceID: instance.ID,
		ActionType: models.ActionTypeAlert,
		OrderIndex: 0,
		Status:     models.StepStatusInProgress,
		Input:      map[string]any{"severity": "HIGH"},
		StartedAt:  &now,
	}
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, first))

	first.Status = models.StepStatusCompleted
	first.Output = map[string]any{"alert_id": "alert-1"}
	first.CompletedAt = &now
	require.NoError(t, repo.Update(ctx, first))

	first.Status = models.StepStatusFailed
	err := repo.Update(ctx, first)
	require.ErrorIs(t, err, persistence.ErrStepFinalized)

	steps, err := repo.ListByInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].OrderIndex)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, "alert-1", steps[0].Output["alert_id"])
	assert.Equal(t, 1, steps[1].OrderIndex)
}

func TestApprovalRepository_DecideOnce(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := testDefinition("Approvals", models.TriggerKindManual)
	require.NoError(t, p.DefinitionRepository().Save(ctx, definition))

	instance := &models.WorkflowInstance{
		DefinitionID:   definition.ID,
		OrganizationID: "org-1",
		Status:         models.InstanceStatusAwaitingApproval,
		TriggerKind:    models.TriggerKindManual,
	}
	require.NoError(t, p.InstanceRepository().Create(ctx, instance))

	repo := p.ApprovalRepository()
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	approvals := []*models.WorkflowApproval{
		{InstanceID: instance.ID, ApproverID: "u1", Status: models.ApprovalStatusPending, Required: true, Deadline: &past},
		{InstanceID: instance.ID, ApproverID: "u2", Status: models.ApprovalStatusPending, Required: true, Deadline: &future},
	}
	require.NoError(t, repo.CreateBatch(ctx, approvals))

	expired, err := repo.ListExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "u1", expired[0].ApproverID)

	decided, err := repo.Decide(ctx, approvals[1].ID, models.ApprovalStatusApproved, "ok", "u2", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, decided.Status)
	assert.Equal(t, "u2", decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)

	_, err = repo.Decide(ctx, approvals[1].ID, models.ApprovalStatusRejected, "", "u2", time.Now().UTC())
	require.ErrorIs(t, err, persistence.ErrApprovalDecided)

	_, err = repo.Decide(ctx, "missing", models.ApprovalStatusRejected, "", "u2", time.Now().UTC())
	require.ErrorIs(t, err, persistence.ErrApprovalNotFound)

	listed, err := repo.ListByInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestCustodyRepository_RecordMovement(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.CustodyRepository()

	dock := &models.Location{OrganizationID: "org-1", Name: "Dock"}
	quarantine := &models.Location{OrganizationID: "org-1", Name: "Quarantine"}
	require.NoError(t, repo.SaveLocation(ctx, dock))
	require.NoError(t, repo.SaveLocation(ctx, quarantine))

	asset := &models.Asset{
		OrganizationID:    "org-1",
		Name:              "Vaccine crate",
		CurrentLocationID: dock.ID,
		Status:            models.AssetStatusActive,
		Attributes:        map[string]any{"lot": "A-12"},
	}
	require.NoError(t, repo.SaveAsset(ctx, asset))

	found, err := repo.FindLocationByName(ctx, "org-1", "quarantine")
	require.NoError(t, err)
	assert.Equal(t, quarantine.ID, found.ID)

	moved, err := repo.RecordMovement(ctx, &models.Movement{
		OrganizationID: "org-1",
		AssetID:        asset.ID,
		ToLocationID:   quarantine.ID,
		Kind:           models.MovementKindQuarantine,
		ActorID:        models.SystemActor,
	}, models.AssetStatusQuarantined)
	require.NoError(t, err)
	assert.Equal(t, quarantine.ID, moved.CurrentLocationID)
	assert.Equal(t, models.AssetStatusQuarantined, moved.Status)

	movements, err := repo.MovementsByAsset(ctx, asset.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, dock.ID, movements[0].FromLocationID)

	_, err = repo.RecordMovement(ctx, &models.Movement{
		OrganizationID: "org-1",
		AssetID:        asset.ID,
		ToLocationID:   "missing",
		Kind:           models.MovementKindTransfer,
		ActorID:        models.SystemActor,
	}, models.AssetStatusInTransit)
	require.ErrorIs(t, err, persistence.ErrLocationNotFound)

	stored, err := repo.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, quarantine.ID, stored.CurrentLocationID)
}

func TestCustodyRepository_UpdateAssetWritesAudit(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.CustodyRepository()

	asset := &models.Asset{OrganizationID: "org-1", Name: "Sample", Status: models.AssetStatusActive}
	require.NoError(t, repo.SaveAsset(ctx, asset))

	asset.Status = models.AssetStatusDestroyed
	err := repo.UpdateAsset(ctx, asset, &models.AuditRecord{
		OrganizationID: "org-1",
		EntityType:     "asset",
		EntityID:       asset.ID,
		Action:         "UPDATE",
		ActorID:        models.SystemActor,
		OldValues:      map[string]any{"status": "ACTIVE"},
		NewValues:      map[string]any{"status": "DESTROYED"},
	})
	require.NoError(t, err)

	records, err := repo.AuditByEntity(ctx, asset.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ACTIVE", records[0].OldValues["status"])
	assert.Equal(t, "DESTROYED", records[0].NewValues["status"])

	err = repo.UpdateAsset(ctx, &models.Asset{ID: "missing"}, &models.AuditRecord{EntityID: "missing"})
	require.ErrorIs(t, err, persistence.ErrAssetNotFound)
}

func TestDirectoryRepository_ActiveUsersByRole(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.DirectoryRepository()

	for _, user := range []*models.User{
		{ID: "u2", OrganizationID: "org-1", Name: "Bo", Roles: []string{"qa", "manager"}, Active: true},
		{ID: "u1", OrganizationID: "org-1", Name: "Al", Roles: []string{"manager"}, Active: true},
		{ID: "u3", OrganizationID: "org-1", Name: "Cy", Roles: []string{"manager"}, Active: false},
		{ID: "u4", OrganizationID: "org-2", Name: "Di", Roles: []string{"manager"}, Active: true},
	} {
		require.NoError(t, repo.SaveUser(ctx, user))
	}

	users, err := repo.ActiveUsersByRole(ctx, "org-1", "manager")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u2", users[1].ID)
	assert.ElementsMatch(t, []string{"qa", "manager"}, users[1].Roles)
}

func TestAlertRepository_SaveAndList(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.AlertRepository()

	value := 9.5
	require.NoError(t, repo.Save(ctx, &models.Alert{
		OrganizationID: "org-1",
		DeviceID:       "sensor-1",
		Type:           models.AlertTypeWorkflowTriggered,
		Severity:       "HIGH",
		Message:        "too warm",
		CurrentValue:   &value,
	}))

	alerts, err := repo.ListByOrganization(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Nil(t, alerts[0].Threshold)
	require.NotNil(t, alerts[0].CurrentValue)
	assert.InDelta(t, 9.5, *alerts[0].CurrentValue, 0.0001)
}
