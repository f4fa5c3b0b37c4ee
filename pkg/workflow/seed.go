package workflow

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/dukex/custodian/pkg/models"
)

// Context keys written by the engine.
const (
	TriggerContextKey = "trigger"
	EntityContextKey  = "entity"
	StepsContextKey   = "steps"
)

// seedContext builds the initial execution context: payload keys at the top
// level, then extra keys, then the trigger metadata and the related entity.
func seedContext(
	payload map[string]any,
	extra map[string]any,
	kind models.TriggerKind,
	triggeredBy string,
	at time.Time,
	entity *models.Asset,
) map[string]any {
	values := make(map[string]any, len(payload)+len(extra)+2)
	maps.Copy(values, payload)
	maps.Copy(values, extra)

	values[TriggerContextKey] = map[string]any{
		"kind":         string(kind),
		"triggered_at": at.Format(time.RFC3339Nano),
		"triggered_by": triggeredBy,
	}

	if entity != nil {
		values[EntityContextKey] = entity.Snapshot()
	}

	return values
}

// recordStepOutput exposes a step's output to later steps under steps.<order index>.
func recordStepOutput(values map[string]any, orderIndex int, output map[string]any) map[string]any {
	if values == nil {
		values = make(map[string]any)
	}

	steps, ok := values[StepsContextKey].(map[string]any)
	if !ok {
		steps = make(map[string]any)
	}

	steps[strconv.Itoa(orderIndex)] = output
	values[StepsContextKey] = steps

	return values
}

// actionInput snapshots the action parameters as the step input.
func actionInput(action models.Action) (map[string]any, error) {
	data, err := json.Marshal(action.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %s config: %w", action.Type, err)
	}

	input := make(map[string]any)

	err = json.Unmarshal(data, &input)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %s config: %w", action.Type, err)
	}

	return input, nil
}
