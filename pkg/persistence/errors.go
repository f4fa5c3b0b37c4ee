// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found by the given identifier.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrStepNotFound indicates a workflow step was not found.
	ErrStepNotFound = errors.New("workflow step not found")

	// ErrApprovalNotFound indicates an approval request was not found.
	ErrApprovalNotFound = errors.New("workflow approval not found")

	// ErrAssetNotFound indicates an asset was not found.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrLocationNotFound indicates a location was not found.
	ErrLocationNotFound = errors.New("location not found")

	// ErrAlreadyExists indicates a record with the same identifier already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStatusConflict indicates a conditional update lost against a concurrent change.
	ErrStatusConflict = errors.New("status changed concurrently")

	// ErrStepFinalized indicates an attempt to modify a completed or failed step.
	ErrStepFinalized = errors.New("workflow step is final")

	// ErrApprovalDecided indicates an approval already carries a decision.
	ErrApprovalDecided = errors.New("approval already decided")
)

// RecordError wraps record-related errors with additional context.
type RecordError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Transition")
	Record string // Record kind (e.g., "instance")
	ID     string // Record ID if applicable
	Err    error  // Underlying error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Record, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, record, id string, err error) *RecordError {
	return &RecordError{
		Op:     op,
		Record: record,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error indicates any record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrApprovalNotFound) ||
		errors.Is(err, ErrAssetNotFound) ||
		errors.Is(err, ErrLocationNotFound)
}

// IsStatusConflict checks if an error indicates a lost compare-and-set.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}
