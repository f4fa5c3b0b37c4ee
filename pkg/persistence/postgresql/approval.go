package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
)

const approvalColumns = `
			id
		  , instance_id
		  , step_id
		  , approver_id
		  , status
		  , comments
		  , required
		  , deadline
		  , decided_at
		  , decided_by
		  , created_at`

// ApprovalRepository handles approval request database operations.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

// CreateBatch inserts every approval in one transaction.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, approvals []*models.WorkflowApproval) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO workflow_approvals (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now().UTC()

	for _, approval := range approvals {
		if approval.ID == "" {
			approval.ID, err = newID()
			if err != nil {
				return err
			}
		}

		if approval.CreatedAt.IsZero() {
			approval.CreatedAt = now
		}

		_, err = tx.ExecContext(ctx, query,
			approval.ID,
			approval.InstanceID,
			approval.StepID,
			approval.ApproverID,
			approval.Status,
			approval.Comments,
			approval.Required,
			approval.Deadline,
			approval.DecidedAt,
			approval.DecidedBy,
			approval.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create workflow approval: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.WorkflowApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM workflow_approvals WHERE id = $1`

	approval, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "approval", id, persistence.ErrApprovalNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow approval: %w", err)
	}

	return approval, nil
}

// Decide records the decision if the approval is still pending.
func (r *ApprovalRepository) Decide(
	ctx context.Context,
	id string,
	status models.ApprovalStatus,
	comments, actor string,
	decidedAt time.Time,
) (*models.WorkflowApproval, error) {
	query := `
		UPDATE workflow_approvals SET
			status = $2,
			comments = $3,
			decided_by = $4,
			decided_at = $5
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + approvalColumns

	approval, err := scanApproval(r.db.QueryRowContext(ctx, query, id, status, comments, actor, decidedAt))
	if err == nil {
		return approval, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to decide workflow approval: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return current, persistence.NewRecordError("Decide", "approval", id, persistence.ErrApprovalDecided)
}

func (r *ApprovalRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowApproval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM workflow_approvals
		WHERE instance_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow approvals: %w", err)
	}

	return collect(ctx, r.logger, rows, scanApproval)
}

// ListExpired returns pending approvals whose deadline is before now.
func (r *ApprovalRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.WorkflowApproval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM workflow_approvals
		WHERE status = 'PENDING' AND deadline IS NOT NULL AND deadline < $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired workflow approvals: %w", err)
	}

	return collect(ctx, r.logger, rows, scanApproval)
}

func scanApproval(row scanner) (*models.WorkflowApproval, error) {
	var approval models.WorkflowApproval

	err := row.Scan(
		&approval.ID,
		&approval.InstanceID,
		&approval.StepID,
		&approval.ApproverID,
		&approval.Status,
		&approval.Comments,
		&approval.Required,
		&approval.Deadline,
		&approval.DecidedAt,
		&approval.DecidedBy,
		&approval.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &approval, nil
}
