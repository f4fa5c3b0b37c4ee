package workflow

import "errors"

// ErrNotCancellable indicates a cancel request on an instance that already left the cancellable states.
var ErrNotCancellable = errors.New("workflow instance is not cancellable")
