package models

import "time"

// InstanceStatus is the state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusPending          InstanceStatus = "PENDING"
	InstanceStatusInProgress       InstanceStatus = "IN_PROGRESS"
	InstanceStatusAwaitingApproval InstanceStatus = "AWAITING_APPROVAL"
	InstanceStatusApproved         InstanceStatus = "APPROVED"
	InstanceStatusExecuting        InstanceStatus = "EXECUTING"
	InstanceStatusCompleted        InstanceStatus = "COMPLETED"
	InstanceStatusFailed           InstanceStatus = "FAILED"
	InstanceStatusRejected         InstanceStatus = "REJECTED"
	InstanceStatusCancelled        InstanceStatus = "CANCELLED"
)

// CancellableStatuses lists the states an explicit cancel request is accepted in.
var CancellableStatuses = []InstanceStatus{
	InstanceStatusPending,
	InstanceStatusInProgress,
	InstanceStatusAwaitingApproval,
	InstanceStatusExecuting,
}

// OpenStatuses lists every non-terminal state.
var OpenStatuses = []InstanceStatus{
	InstanceStatusPending,
	InstanceStatusInProgress,
	InstanceStatusAwaitingApproval,
	InstanceStatusApproved,
	InstanceStatusExecuting,
}

// IsTerminal reports whether the status can no longer change.
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case InstanceStatusCompleted, InstanceStatusFailed, InstanceStatusRejected, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowInstance is one execution attempt of a definition.
type WorkflowInstance struct {
	ID              string         `json:"id"`
	DefinitionID    string         `json:"definition_id"`
	OrganizationID  string         `json:"organization_id"`
	Status          InstanceStatus `json:"status"`
	TriggerKind     TriggerKind    `json:"trigger_kind"`
	TriggerPayload  map[string]any `json:"trigger_payload,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
	RelatedEntityID *string        `json:"related_entity_id,omitempty"`
	TriggeredBy     string         `json:"triggered_by,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	RetryCount      int            `json:"retry_count"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// InstanceUpdate describes a conditional change of an instance. Nil fields are left untouched.
type InstanceUpdate struct {
	Status       InstanceStatus
	Context      map[string]any
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Apply copies the update onto the instance.
func (u InstanceUpdate) Apply(instance *WorkflowInstance, now time.Time) {
	if u.Status != "" {
		instance.Status = u.Status
	}

	if u.Context != nil {
		instance.Context = u.Context
	}

	if u.ErrorMessage != nil {
		instance.ErrorMessage = *u.ErrorMessage
	}

	if u.StartedAt != nil {
		instance.StartedAt = u.StartedAt
	}

	if u.CompletedAt != nil {
		instance.CompletedAt = u.CompletedAt
	}

	instance.UpdatedAt = now
}
