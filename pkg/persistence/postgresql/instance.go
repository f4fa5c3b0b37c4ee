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
	"github.com/lib/pq"
)

const instanceColumns = `
			id
		  , definition_id
		  , organization_id
		  , status
		  , trigger_kind
		  , trigger_payload
		  , context
		  , related_entity_id
		  , triggered_by
		  , started_at
		  , completed_at
		  , error_message
		  , retry_count
		  , created_at
		  , updated_at`

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	if instance.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		instance.ID = id
	}

	now := time.Now().UTC()
	instance.CreatedAt = now
	instance.UpdatedAt = now

	payloadJSON, err := jsonColumn("trigger payload", instance.TriggerPayload)
	if err != nil {
		return err
	}

	contextJSON, err := jsonColumn("context", instance.Context)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.DefinitionID,
		instance.OrganizationID,
		instance.Status,
		instance.TriggerKind,
		payloadJSON,
		contextJSON,
		instance.RelatedEntityID,
		instance.TriggeredBy,
		instance.StartedAt,
		instance.CompletedAt,
		instance.ErrorMessage,
		instance.RetryCount,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewRecordError("Create", "instance", instance.ID, persistence.ErrAlreadyExists)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "instance", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
	}

	return instance, nil
}

// Transition applies the update in a single conditional statement guarded by the current status.
func (r *InstanceRepository) Transition(
	ctx context.Context,
	id string,
	from []models.InstanceStatus,
	update models.InstanceUpdate,
) (*models.WorkflowInstance, error) {
	contextJSON, err := jsonColumn("context", update.Context)
	if err != nil {
		return nil, err
	}

	statuses := make([]string, len(from))
	for i, status := range from {
		statuses[i] = string(status)
	}

	query := `
		UPDATE workflow_instances SET
			status = COALESCE(NULLIF($2, ''), status),
			context = COALESCE($3::jsonb, context),
			error_message = COALESCE($4, error_message),
			started_at = COALESCE($5, started_at),
			completed_at = COALESCE($6, completed_at),
			updated_at = $7
		WHERE id = $1 AND status = ANY($8)
		RETURNING ` + instanceColumns

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query,
		id,
		string(update.Status),
		contextJSON,
		update.ErrorMessage,
		update.StartedAt,
		update.CompletedAt,
		time.Now().UTC(),
		pq.Array(statuses),
	))
	if err == nil {
		return instance, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to transition workflow instance: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return current, persistence.NewRecordError("Transition", "instance", id, persistence.ErrStatusConflict)
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, statuses ...models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}

	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE status = ANY($1)
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(values))
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instances by status: %w", err)
	}

	return collect(ctx, r.logger, rows, scanInstance)
}

func (r *InstanceRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE definition_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instances by definition: %w", err)
	}

	return collect(ctx, r.logger, rows, scanInstance)
}

func scanInstance(row scanner) (*models.WorkflowInstance, error) {
	var (
		instance models.WorkflowInstance

		payloadJSON, contextJSON []byte
	)

	err := row.Scan(
		&instance.ID,
		&instance.DefinitionID,
		&instance.OrganizationID,
		&instance.Status,
		&instance.TriggerKind,
		&payloadJSON,
		&contextJSON,
		&instance.RelatedEntityID,
		&instance.TriggeredBy,
		&instance.StartedAt,
		&instance.CompletedAt,
		&instance.ErrorMessage,
		&instance.RetryCount,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("trigger payload", payloadJSON, &instance.TriggerPayload)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("context", contextJSON, &instance.Context)
	if err != nil {
		return nil, err
	}

	return &instance, nil
}

const stepColumns = `
			id
		  , instance_id
		  , action_type
		  , order_index
		  , status
		  , input
		  , output
		  , error_message
		  , started_at
		  , completed_at
		  , executed_by`

// StepRepository handles workflow step database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

func (r *StepRepository) Create(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		step.ID = id
	}

	inputJSON, outputJSON, err := stepJSON(step)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_steps (` + stepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.InstanceID,
		step.ActionType,
		step.OrderIndex,
		step.Status,
		inputJSON,
		outputJSON,
		step.ErrorMessage,
		step.StartedAt,
		step.CompletedAt,
		step.ExecutedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow step: %w", err)
	}

	return nil
}

func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE id = $1`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "step", id, persistence.ErrStepNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow step: %w", err)
	}

	return step, nil
}

// Update replaces a step unless the stored one is already final.
func (r *StepRepository) Update(ctx context.Context, step *models.WorkflowStep) error {
	inputJSON, outputJSON, err := stepJSON(step)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_steps SET
			status = $2,
			input = $3,
			output = $4,
			error_message = $5,
			started_at = $6,
			completed_at = $7,
			executed_by = $8
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
	`

	result, err := r.db.ExecContext(ctx, query,
		step.ID,
		step.Status,
		inputJSON,
		outputJSON,
		step.ErrorMessage,
		step.StartedAt,
		step.CompletedAt,
		step.ExecutedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	_, err = r.GetByID(ctx, step.ID)
	if err != nil {
		return err
	}

	return persistence.NewRecordError("Update", "step", step.ID, persistence.ErrStepFinalized)
}

// ListByInstance returns the instance's steps ordered by their order index.
func (r *StepRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM workflow_steps
		WHERE instance_id = $1
		ORDER BY order_index
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow steps: %w", err)
	}

	return collect(ctx, r.logger, rows, scanStep)
}

func stepJSON(step *models.WorkflowStep) ([]byte, []byte, error) {
	inputJSON, err := jsonColumn("step input", step.Input)
	if err != nil {
		return nil, nil, err
	}

	outputJSON, err := jsonColumn("step output", step.Output)
	if err != nil {
		return nil, nil, err
	}

	return inputJSON, outputJSON, nil
}

func scanStep(row scanner) (*models.WorkflowStep, error) {
	var (
		step models.WorkflowStep

		inputJSON, outputJSON []byte
	)

	err := row.Scan(
		&step.ID,
		&step.InstanceID,
		&step.ActionType,
		&step.OrderIndex,
		&step.Status,
		&inputJSON,
		&outputJSON,
		&step.ErrorMessage,
		&step.StartedAt,
		&step.CompletedAt,
		&step.ExecutedBy,
	)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("step input", inputJSON, &step.Input)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("step output", outputJSON, &step.Output)
	if err != nil {
		return nil, err
	}

	return &step, nil
}
