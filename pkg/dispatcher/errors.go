package dispatcher

import "errors"

var (
	// ErrNotManuallyExecutable indicates a manual trigger for a definition whose trigger kind is not MANUAL.
	ErrNotManuallyExecutable = errors.New("workflow definition is not manually executable")

	// ErrNotAPIExecutable indicates an API trigger for a definition whose trigger kind is not API.
	ErrNotAPIExecutable = errors.New("workflow definition is not triggered by API")

	// ErrNotScheduled indicates a schedule fire for a definition whose trigger kind is not SCHEDULE.
	ErrNotScheduled = errors.New("workflow definition is not scheduled")

	// ErrDefinitionInactive indicates a trigger for an inactive or deleted definition.
	ErrDefinitionInactive = errors.New("workflow definition is not active")

	// ErrInvalidPayload indicates a payload rejected by the definition's payload schema.
	ErrInvalidPayload = errors.New("invalid trigger payload")
)
