package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ActionType tags the variant of an Action.
type ActionType string

const (
	ActionTypeTransfer   ActionType = "TRANSFER"
	ActionTypeQuarantine ActionType = "QUARANTINE"
	ActionTypeNotify     ActionType = "NOTIFY"
	ActionTypeAlert      ActionType = "ALERT"
	ActionTypeUpdate     ActionType = "UPDATE"
	ActionTypeApprove    ActionType = "APPROVE"
)

const DefaultQuarantineLocation = "Quarantine"

var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrMissingConfig     = errors.New("action config is missing")
)

// ActionResult is what a handler returns for one executed action.
// Suspended marks an action that completes later, outside the current unit of work.
type ActionResult struct {
	Output    map[string]any
	Suspended bool
}

// ActionHandler has one method per action variant. Implementations that miss a
// variant do not satisfy the interface.
type ActionHandler interface {
	Transfer(ctx context.Context, config *TransferConfig) (ActionResult, error)
	Quarantine(ctx context.Context, config *QuarantineConfig) (ActionResult, error)
	Notify(ctx context.Context, config *NotifyConfig) (ActionResult, error)
	Alert(ctx context.Context, config *AlertConfig) (ActionResult, error)
	Update(ctx context.Context, config *UpdateConfig) (ActionResult, error)
	Approve(ctx context.Context, config *ApproveConfig) (ActionResult, error)
}

// ActionConfig is the sealed set of action parameter types.
type ActionConfig interface {
	ActionType() ActionType
	accept(ctx context.Context, handler ActionHandler) (ActionResult, error)
}

type TransferConfig struct {
	TargetLocationID string      `json:"target_location_id" validate:"required"`
	Status           AssetStatus `json:"status,omitempty"`
	Reason           string      `json:"reason,omitempty"`
}

func (*TransferConfig) ActionType() ActionType { return ActionTypeTransfer }

func (c *TransferConfig) accept(ctx context.Context, h ActionHandler) (ActionResult, error) {
	return h.Transfer(ctx, c)
}

type QuarantineConfig struct {
	LocationName string `json:"location_name,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func (*QuarantineConfig) ActionType() ActionType { return ActionTypeQuarantine }

func (c *QuarantineConfig) accept(ctx context.Context, h ActionHandler) (ActionResult, error) {
	return h.Quarantine(ctx, c)
}

// Location returns the configured quarantine location name or the default one.
func (c *QuarantineConfig) Location() string {
	if c.LocationName == "" {
		return DefaultQuarantineLocation
	}

	return c.LocationName
}

type NotifyConfig struct {
	Roles   []string `json:"roles"           validate:"required,min=1,dive,required"`
	Title   string   `json:"title,omitempty"`
	Message string   `json:"message"`
}

func (*NotifyConfig) ActionType() ActionType { return ActionTypeNotify }

func (c *NotifyConfig) accept(ctx context.Context, h ActionHandler) (ActionResult, error) {
	return h.Notify(ctx, c)
}

type AlertConfig struct {
	Severity string `json:"severity,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Message  string `json:"message"`
}

func (*AlertConfig) ActionType() ActionType { return ActionTypeAlert }

func (c *AlertConfig) accept(ctx context.Context, h ActionHandler) (ActionResult, error) {
	return h.Alert(ctx, c)
}

type UpdateConfig struct {
	Fields map[string]any `json:"fields" validate:"required,min=1"`
}

func (*UpdateConfig) ActionType() ActionType { return ActionTypeUpdate }

func (c *UpdateConfig) accept(ctx context.Context, h ActionHandler) (ActionResult, error) {
	return h.Update(ctx, c)
}

type ApproveConfig struct {
	ApproverRoles     []string `json:"approver_roles"             validate:"required,min=1,dive,required"`
	RequiredApprovals int      `json:"required_approvals"         validate:"omitempty,min=1"`
	DeadlineMinutes   int      `json:"deadline_minutes,omitempty" validate:"omitempty,min=1"`
	Message           string   `json:"message,omitempty"`
}

func (*ApproveConfig) ActionType() ActionType { return ActionTypeApprove }

func (c *ApproveConfig) accept(ctx context.Context, h ActionHandler) (ActionResult, error) {
	return h.Approve(ctx, c)
}

// Required returns how many approvals resolve the gate. Defaults to one.
func (c *ApproveConfig) Required() int {
	if c.RequiredApprovals < 1 {
		return 1
	}

	return c.RequiredApprovals
}

// Action is a typed, parameterized side-effecting operation.
type Action struct {
	Type   ActionType   `json:"type"   validate:"required,oneof=TRANSFER QUARANTINE NOTIFY ALERT UPDATE APPROVE"`
	Config ActionConfig `json:"config" validate:"required"`
}

// NewAction builds an Action whose tag matches its config.
func NewAction(config ActionConfig) Action {
	return Action{Type: config.ActionType(), Config: config}
}

// Dispatch routes the action to the handler method for its variant.
func (a Action) Dispatch(ctx context.Context, handler ActionHandler) (ActionResult, error) {
	if a.Config == nil {
		return ActionResult{}, fmt.Errorf("%s: %w", a.Type, ErrMissingConfig)
	}

	return a.Config.accept(ctx, handler)
}

type actionJSON struct {
	Type   ActionType      `json:"type"`
	Config json.RawMessage `json:"config"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	config, err := json.Marshal(a.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s config: %w", a.Type, err)
	}

	return json.Marshal(actionJSON{Type: a.Type, Config: config})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	config, err := newActionConfig(raw.Type)
	if err != nil {
		return err
	}

	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		err = json.Unmarshal(raw.Config, config)
		if err != nil {
			return fmt.Errorf("failed to unmarshal %s config: %w", raw.Type, err)
		}
	}

	a.Type = raw.Type
	a.Config = config

	return nil
}

func newActionConfig(actionType ActionType) (ActionConfig, error) {
	switch actionType {
	case ActionTypeTransfer:
		return &TransferConfig{}, nil
	case ActionTypeQuarantine:
		return &QuarantineConfig{}, nil
	case ActionTypeNotify:
		return &NotifyConfig{}, nil
	case ActionTypeAlert:
		return &AlertConfig{}, nil
	case ActionTypeUpdate:
		return &UpdateConfig{}, nil
	case ActionTypeApprove:
		return &ApproveConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}
}
