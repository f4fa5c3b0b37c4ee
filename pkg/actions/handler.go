package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/dukex/custodian/pkg/approvals"
	"github.com/dukex/custodian/pkg/conditions"
	"github.com/dukex/custodian/pkg/events"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/notifier"
	"github.com/dukex/custodian/pkg/persistence"
)

const defaultAlertSeverity = "MEDIUM"

// handler runs the actions of a single execution request.
type handler struct {
	*Executor

	req    ExecutionRequest
	logger *slog.Logger
}

var _ models.ActionHandler = (*handler)(nil)

func (h *handler) Transfer(ctx context.Context, config *models.TransferConfig) (models.ActionResult, error) {
	entityID, err := h.relatedEntity()
	if err != nil {
		return models.ActionResult{}, err
	}

	if config.TargetLocationID == "" {
		return models.ActionResult{}, fmt.Errorf("%w: no target location", ErrMissingPrecondition)
	}

	_, err = h.asset(ctx, entityID)
	if err != nil {
		return models.ActionResult{}, err
	}

	_, err = h.location(ctx, config.TargetLocationID)
	if err != nil {
		return models.ActionResult{}, err
	}

	status := config.Status
	if status == "" {
		status = models.AssetStatusActive
	}

	return h.move(ctx, entityID, config.TargetLocationID, models.MovementKindTransfer, config.Reason, status)
}

func (h *handler) Quarantine(ctx context.Context, config *models.QuarantineConfig) (models.ActionResult, error) {
	entityID, err := h.relatedEntity()
	if err != nil {
		return models.ActionResult{}, err
	}

	_, err = h.asset(ctx, entityID)
	if err != nil {
		return models.ActionResult{}, err
	}

	location, err := h.custody.FindLocationByName(ctx, h.req.Definition.OrganizationID, config.Location())
	if err != nil {
		if persistence.IsNotFound(err) {
			return models.ActionResult{}, fmt.Errorf("%w: quarantine location %q", ErrResourceNotFound, config.Location())
		}

		return models.ActionResult{}, fmt.Errorf("failed to find quarantine location: %w", err)
	}

	reason := config.Reason
	if reason == "" {
		reason = "Quarantined by workflow " + h.req.Definition.Name
	}

	return h.move(ctx, entityID, location.ID, models.MovementKindQuarantine, reason, models.AssetStatusQuarantined)
}

func (h *handler) Notify(ctx context.Context, config *models.NotifyConfig) (models.ActionResult, error) {
	users, err := approvals.ResolveUsers(ctx, h.directory, h.req.Definition.OrganizationID, config.Roles)
	if err != nil {
		return models.ActionResult{}, err
	}

	title := config.Title
	if title == "" {
		title = h.req.Definition.Name
	}

	recipients := make([]string, 0, len(users))

	for _, user := range users {
		err := h.notifier.Notify(ctx, notifier.Notification{
			UserID:  user.ID,
			Kind:    notifier.KindWorkflow,
			Title:   title,
			Message: config.Message,
			Data: map[string]any{
				"workflow_name":     h.req.Definition.Name,
				"instance_id":       h.req.Instance.ID,
				"related_entity_id": h.relatedEntityID(),
				"message":           config.Message,
			},
		})
		if err != nil {
			h.logger.WarnContext(ctx, "Failed to deliver notification", "user_id", user.ID, "error", err)
		}

		recipients = append(recipients, user.ID)
	}

	return models.ActionResult{Output: map[string]any{
		"notified":   len(recipients),
		"recipients": recipients,
	}}, nil
}

func (h *handler) Alert(ctx context.Context, config *models.AlertConfig) (models.ActionResult, error) {
	values := h.req.Instance.Context

	deviceID, _ := conditions.Lookup(values, "device_id")

	device, ok := deviceID.(string)
	if !ok || device == "" {
		h.logger.InfoContext(ctx, "No device in context, skipping alert")

		return models.ActionResult{Output: map[string]any{"skipped": true}}, nil
	}

	severity := config.Severity
	if severity == "" {
		severity = defaultAlertSeverity
	}

	message := config.Message
	if message == "" {
		message = "Workflow " + h.req.Definition.Name + " triggered"
	}

	alert := &models.Alert{
		OrganizationID: h.req.Definition.OrganizationID,
		DeviceID:       device,
		Type:           models.AlertTypeWorkflowTriggered,
		Severity:       severity,
		Message:        message,
		Threshold:      number(values, "threshold"),
		CurrentValue:   number(values, "current_value"),
		InstanceID:     h.req.Instance.ID,
	}

	err := h.alerts.Save(ctx, alert)
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("failed to store alert: %w", err)
	}

	err = h.publisher.Publish(ctx, alert.OrganizationID, events.AlertCreatedEvent, map[string]any{
		"alert_id":    alert.ID,
		"device_id":   alert.DeviceID,
		"type":        alert.Type,
		"severity":    alert.Severity,
		"message":     alert.Message,
		"instance_id": alert.InstanceID,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "Failed to publish alert", "alert_id", alert.ID, "error", err)
	}

	return models.ActionResult{Output: map[string]any{
		"alert_id":  alert.ID,
		"device_id": alert.DeviceID,
		"severity":  alert.Severity,
	}}, nil
}

func (h *handler) Update(ctx context.Context, config *models.UpdateConfig) (models.ActionResult, error) {
	entityID, err := h.relatedEntity()
	if err != nil {
		return models.ActionResult{}, err
	}

	if len(config.Fields) == 0 {
		return models.ActionResult{}, fmt.Errorf("%w: no fields to update", ErrMissingPrecondition)
	}

	asset, err := h.asset(ctx, entityID)
	if err != nil {
		return models.ActionResult{}, err
	}

	oldValues, newValues, err := applyFields(asset, config.Fields)
	if err != nil {
		return models.ActionResult{}, err
	}

	audit := &models.AuditRecord{
		OrganizationID: asset.OrganizationID,
		EntityType:     "asset",
		EntityID:       asset.ID,
		Action:         string(models.ActionTypeUpdate),
		ActorID:        h.actor(),
		OldValues:      oldValues,
		NewValues:      newValues,
		InstanceID:     h.req.Instance.ID,
	}

	err = h.custody.UpdateAsset(ctx, asset, audit)
	if err != nil {
		if persistence.IsNotFound(err) {
			return models.ActionResult{}, fmt.Errorf("%w: %w", ErrResourceNotFound, err)
		}

		return models.ActionResult{}, fmt.Errorf("failed to update asset: %w", err)
	}

	return models.ActionResult{Output: map[string]any{
		"audit_id":       audit.ID,
		"asset_id":       asset.ID,
		"updated_fields": slices.Sorted(maps.Keys(newValues)),
	}}, nil
}

func (h *handler) Approve(ctx context.Context, config *models.ApproveConfig) (models.ActionResult, error) {
	created, err := h.approvals.RequestApprovals(ctx, h.req.Definition, h.req.Instance, h.req.Step, config)
	if err != nil {
		if errors.Is(err, approvals.ErrNoApprovers) {
			return models.ActionResult{}, fmt.Errorf("%w: %w", ErrMissingPrecondition, err)
		}

		return models.ActionResult{}, err
	}

	ids := make([]string, 0, len(created))
	for _, a := range created {
		ids = append(ids, a.ID)
	}

	return models.ActionResult{
		Output: map[string]any{
			"approval_ids":       ids,
			"required_approvals": config.Required(),
		},
		Suspended: true,
	}, nil
}

func (h *handler) move(
	ctx context.Context,
	assetID, locationID string,
	kind models.MovementKind,
	reason string,
	status models.AssetStatus,
) (models.ActionResult, error) {
	movement := &models.Movement{
		OrganizationID: h.req.Definition.OrganizationID,
		AssetID:        assetID,
		ToLocationID:   locationID,
		Kind:           kind,
		Reason:         reason,
		ActorID:        h.actor(),
		InstanceID:     h.req.Instance.ID,
	}

	asset, err := h.custody.RecordMovement(ctx, movement, status)
	if err != nil {
		if persistence.IsNotFound(err) {
			return models.ActionResult{}, fmt.Errorf("%w: %w", ErrResourceNotFound, err)
		}

		return models.ActionResult{}, fmt.Errorf("failed to record movement: %w", err)
	}

	h.logger.InfoContext(ctx, "Asset moved",
		"asset_id", asset.ID,
		"from_location_id", movement.FromLocationID,
		"to_location_id", movement.ToLocationID,
		"status", asset.Status,
	)

	return models.ActionResult{Output: map[string]any{
		"movement_id":      movement.ID,
		"asset_id":         asset.ID,
		"from_location_id": movement.FromLocationID,
		"to_location_id":   movement.ToLocationID,
		"status":           string(asset.Status),
	}}, nil
}

func (h *handler) relatedEntity() (string, error) {
	id := h.relatedEntityID()
	if id == "" {
		return "", fmt.Errorf("%w: no related entity", ErrMissingPrecondition)
	}

	return id, nil
}

func (h *handler) relatedEntityID() string {
	if h.req.Instance.RelatedEntityID == nil {
		return ""
	}

	return *h.req.Instance.RelatedEntityID
}

// asset loads an asset of the definition's organization.
func (h *handler) asset(ctx context.Context, id string) (*models.Asset, error) {
	asset, err := h.custody.GetAsset(ctx, id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, fmt.Errorf("%w: asset %s", ErrResourceNotFound, id)
		}

		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	if asset.OrganizationID != h.req.Definition.OrganizationID {
		return nil, fmt.Errorf("%w: asset %s", ErrResourceNotFound, id)
	}

	return asset, nil
}

func (h *handler) location(ctx context.Context, id string) (*models.Location, error) {
	location, err := h.custody.GetLocation(ctx, id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, fmt.Errorf("%w: location %s", ErrResourceNotFound, id)
		}

		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	if location.OrganizationID != h.req.Definition.OrganizationID {
		return nil, fmt.Errorf("%w: location %s", ErrResourceNotFound, id)
	}

	return location, nil
}

func (h *handler) actor() string {
	if h.req.Instance.TriggeredBy == "" {
		return models.SystemActor
	}

	return h.req.Instance.TriggeredBy
}

func number(values map[string]any, key string) *float64 {
	value, found := conditions.Lookup(values, key)
	if !found {
		return nil
	}

	n, ok := conditions.Number(value)
	if !ok {
		return nil
	}

	return &n
}
