package models

import "time"

// SystemActor is recorded when no human actor is attached to a change.
const SystemActor = "system"

// AssetStatus is the custody state of a tracked asset.
type AssetStatus string

const (
	AssetStatusActive      AssetStatus = "ACTIVE"
	AssetStatusInTransit   AssetStatus = "IN_TRANSIT"
	AssetStatusQuarantined AssetStatus = "QUARANTINED"
	AssetStatusDestroyed   AssetStatus = "DESTROYED"
)

// Asset is a custody-tracked entity that workflow actions relocate or mutate.
type Asset struct {
	ID                string         `json:"id"`
	OrganizationID    string         `json:"organization_id"`
	Name              string         `json:"name"`
	CurrentLocationID string         `json:"current_location_id,omitempty"`
	Status            AssetStatus    `json:"status"`
	Attributes        map[string]any `json:"attributes,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Snapshot flattens the asset into context data visible to conditions.
func (a *Asset) Snapshot() map[string]any {
	attributes := make(map[string]any, len(a.Attributes))
	for k, v := range a.Attributes {
		attributes[k] = v
	}

	return map[string]any{
		"id":                  a.ID,
		"name":                a.Name,
		"status":              string(a.Status),
		"current_location_id": a.CurrentLocationID,
		"attributes":          attributes,
	}
}

// Location is a physical place assets are kept in.
type Location struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Kind           string `json:"kind,omitempty"`
}

// MovementKind distinguishes why an asset moved.
type MovementKind string

const (
	MovementKindTransfer   MovementKind = "TRANSFER"
	MovementKindQuarantine MovementKind = "QUARANTINE"
)

// Movement is the custody record of an asset changing location.
type Movement struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	AssetID        string       `json:"asset_id"`
	FromLocationID string       `json:"from_location_id,omitempty"`
	ToLocationID   string       `json:"to_location_id"`
	Kind           MovementKind `json:"kind"`
	Reason         string       `json:"reason,omitempty"`
	ActorID        string       `json:"actor_id"`
	InstanceID     string       `json:"instance_id,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

// AuditRecord captures old and new values of a record mutation.
type AuditRecord struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	Action         string         `json:"action"`
	ActorID        string         `json:"actor_id"`
	OldValues      map[string]any `json:"old_values"`
	NewValues      map[string]any `json:"new_values"`
	InstanceID     string         `json:"instance_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// User is a member of an organization that can be notified or asked for approval.
type User struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	Name           string   `json:"name"`
	Email          string   `json:"email,omitempty"`
	Roles          []string `json:"roles"`
	Active         bool     `json:"active"`
}

// HasRole reports whether the user holds the role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}

	return false
}

const AlertTypeWorkflowTriggered = "WORKFLOW_TRIGGERED"

// Alert is a structured alert raised by a workflow.
type Alert struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	DeviceID       string    `json:"device_id"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Threshold      *float64  `json:"threshold,omitempty"`
	CurrentValue   *float64  `json:"current_value,omitempty"`
	InstanceID     string    `json:"instance_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
