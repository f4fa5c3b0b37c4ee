package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
)

const approvalsCollection = "approvals"

// ApprovalRepository handles approval request file operations.
type ApprovalRepository struct {
	store
}

// CreateBatch stores every approval under one lock so readers never see a partial batch.
func (r *ApprovalRepository) CreateBatch(_ context.Context, approvals []*models.WorkflowApproval) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	for _, approval := range approvals {
		if approval.ID == "" {
			id, err := newID()
			if err != nil {
				return err
			}

			approval.ID = id
		}

		if approval.CreatedAt.IsZero() {
			approval.CreatedAt = now
		}
	}

	for _, approval := range approvals {
		err := r.write(approvalsCollection, approval.ID, approval)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *ApprovalRepository) GetByID(_ context.Context, id string) (*models.WorkflowApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	approval, err := read[models.WorkflowApproval](r.store, approvalsCollection, id, persistence.ErrApprovalNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "approval", id, err)
	}

	return approval, nil
}

// Decide records the decision if the approval is still pending.
func (r *ApprovalRepository) Decide(
	_ context.Context,
	id string,
	status models.ApprovalStatus,
	comments, actor string,
	decidedAt time.Time,
) (*models.WorkflowApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	approval, err := read[models.WorkflowApproval](r.store, approvalsCollection, id, persistence.ErrApprovalNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("Decide", "approval", id, err)
	}

	if approval.Status != models.ApprovalStatusPending {
		return approval, persistence.NewRecordError("Decide", "approval", id, persistence.ErrApprovalDecided)
	}

	approval.Status = status
	approval.Comments = comments
	approval.DecidedBy = actor
	approval.DecidedAt = &decidedAt

	err = r.write(approvalsCollection, id, approval)
	if err != nil {
		return nil, err
	}

	return approval, nil
}

func (r *ApprovalRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	approvals, err := readAll(r.store, approvalsCollection, func(a *models.WorkflowApproval) bool {
		return a.InstanceID == instanceID
	})
	if err != nil {
		return nil, err
	}

	sortApprovals(approvals)

	return approvals, nil
}

// ListExpired returns pending approvals whose deadline is before now.
func (r *ApprovalRepository) ListExpired(_ context.Context, now time.Time) ([]*models.WorkflowApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	approvals, err := readAll(r.store, approvalsCollection, func(a *models.WorkflowApproval) bool {
		return a.Status == models.ApprovalStatusPending && a.Deadline != nil && a.Deadline.Before(now)
	})
	if err != nil {
		return nil, err
	}

	sortApprovals(approvals)

	return approvals, nil
}

func sortApprovals(approvals []*models.WorkflowApproval) {
	sort.Slice(approvals, func(i, j int) bool {
		if approvals[i].CreatedAt.Equal(approvals[j].CreatedAt) {
			return approvals[i].ID < approvals[j].ID
		}

		return approvals[i].CreatedAt.Before(approvals[j].CreatedAt)
	})
}
