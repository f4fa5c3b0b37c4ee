package approvals

import "errors"

var (
	// ErrNoApprovers indicates no active user holds any of the approver roles.
	ErrNoApprovers = errors.New("no active approvers resolved")

	// ErrAlreadyDecided indicates the approval already carries a decision.
	ErrAlreadyDecided = errors.New("approval already decided")

	// ErrNotApprover indicates the actor is not the approver the request was addressed to.
	ErrNotApprover = errors.New("actor is not the approver")

	// ErrInvalidDecision indicates a decision other than APPROVED or REJECTED.
	ErrInvalidDecision = errors.New("decision must be APPROVED or REJECTED")
)
