package workflow

import (
	"testing"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedContext(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	asset := &models.Asset{ID: "asset-1", Name: "Sample", Status: models.AssetStatusActive}

	values := seedContext(
		map[string]any{"reason": "audit", "device_id": "from-payload"},
		map[string]any{"device_id": "sensor-7"},
		models.TriggerKindEventAlert,
		"",
		at,
		asset,
	)

	assert.Equal(t, "audit", values["reason"])
	assert.Equal(t, "sensor-7", values["device_id"])

	trigger, ok := values[TriggerContextKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "EVENT_ALERT", trigger["kind"])
	assert.Equal(t, "2026-03-01T10:00:00Z", trigger["triggered_at"])

	entity, ok := values[EntityContextKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ACTIVE", entity["status"])

	assert.NotContains(t, seedContext(nil, nil, models.TriggerKindManual, "u1", at, nil), EntityContextKey)
}

func TestRecordStepOutput(t *testing.T) {
	values := recordStepOutput(nil, 1, map[string]any{"movement_id": "m-1"})
	values = recordStepOutput(values, 2, map[string]any{"notified": 3})

	steps, ok := values[StepsContextKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"movement_id": "m-1"}, steps["1"])
	assert.Equal(t, map[string]any{"notified": 3}, steps["2"])
}

func TestActionInput(t *testing.T) {
	input, err := actionInput(models.NewAction(&models.ApproveConfig{ApproverRoles: []string{"qa"}, RequiredApprovals: 2}))
	require.NoError(t, err)

	assert.Equal(t, []any{"qa"}, input["approver_roles"])
	assert.InDelta(t, 2.0, input["required_approvals"], 0.0001)
}
