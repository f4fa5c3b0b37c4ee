// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors.
var (
	// ErrValidation marks every malformed definition.
	ErrValidation = errors.New("invalid workflow definition")

	ErrDefinitionNil        = errors.New("workflow definition cannot be nil")
	ErrTriggerConfigInvalid = errors.New("invalid trigger configuration")
	ErrActionTypeMismatch   = errors.New("action type does not match its config")

	// ErrDefinitionDeleted indicates an edit of a soft-deleted definition.
	ErrDefinitionDeleted = errors.New("workflow definition is deleted")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for callers
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrValidation && e.Code == validationCode || errors.Is(e.Err, target)
}

const validationCode = "VALIDATION_ERROR"

// IsValidationError checks if an error is a definition validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if an error is a business logic conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDefinitionDeleted)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    validationCode,
		Message: message,
		Err:     err,
	}
}
