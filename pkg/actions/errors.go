package actions

import (
	"errors"
	"fmt"

	"github.com/dukex/custodian/pkg/models"
)

var (
	// ErrMissingPrecondition indicates an action ran without data it needs.
	ErrMissingPrecondition = errors.New("missing precondition")

	// ErrResourceNotFound indicates a referenced entity or location does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// ActionError wraps any failure of an executed action. It is always terminal for the step.
type ActionError struct {
	Action models.ActionType
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func IsMissingPrecondition(err error) bool {
	return errors.Is(err, ErrMissingPrecondition)
}

func IsResourceNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound)
}
