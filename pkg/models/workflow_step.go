package models

import "time"

// StepStatus is the state of one executed action.
type StepStatus string

const (
	StepStatusPending    StepStatus = "PENDING"
	StepStatusInProgress StepStatus = "IN_PROGRESS"
	StepStatusCompleted  StepStatus = "COMPLETED"
	StepStatusFailed     StepStatus = "FAILED"
	StepStatusSkipped    StepStatus = "SKIPPED"
)

// IsFinal reports whether the step record is immutable.
func (s StepStatus) IsFinal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}

// WorkflowStep is one executed action within an instance.
type WorkflowStep struct {
	ID           string         `json:"id"`
	InstanceID   string         `json:"instance_id"`
	ActionType   ActionType     `json:"action_type"`
	OrderIndex   int            `json:"order_index"`
	Status       StepStatus     `json:"status"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ExecutedBy   string         `json:"executed_by,omitempty"`
}

// ApprovalStatus is the decision state of one approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// WorkflowApproval is one sign-off request tied to an instance and its APPROVE step.
type WorkflowApproval struct {
	ID         string         `json:"id"`
	InstanceID string         `json:"instance_id"`
	StepID     string         `json:"step_id,omitempty"`
	ApproverID string         `json:"approver_id"`
	Status     ApprovalStatus `json:"status"`
	Comments   string         `json:"comments,omitempty"`
	Required   bool           `json:"required"`
	Deadline   *time.Time     `json:"deadline,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
	DecidedBy  string         `json:"decided_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
