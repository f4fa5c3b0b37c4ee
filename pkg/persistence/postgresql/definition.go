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

const definitionColumns = `
			id
		  , organization_id
		  , name
		  , description
		  , trigger_kind
		  , trigger_config
		  , conditions
		  , actions
		  , active
		  , priority
		  , timeout_minutes
		  , version
		  , created_by
		  , created_at
		  , updated_at
		  , deleted_at`

// DefinitionRepository handles workflow definition database operations.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

// Save creates or fully replaces a definition.
func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	if definition.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		definition.ID = id
	}

	triggerConfigJSON, err := jsonColumn("trigger config", definition.TriggerConfig)
	if err != nil {
		return err
	}

	conditions := definition.Conditions
	if conditions == nil {
		conditions = []models.Condition{}
	}

	conditionsJSON, err := jsonColumn("conditions", conditions)
	if err != nil {
		return err
	}

	actionsJSON, err := jsonColumn("actions", definition.Actions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_definitions (` + definitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_kind = EXCLUDED.trigger_kind,
			trigger_config = EXCLUDED.trigger_config,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			active = EXCLUDED.active,
			priority = EXCLUDED.priority,
			timeout_minutes = EXCLUDED.timeout_minutes,
			version = EXCLUDED.version,
			created_by = EXCLUDED.created_by,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		definition.ID,
		definition.OrganizationID,
		definition.Name,
		definition.Description,
		definition.TriggerKind,
		triggerConfigJSON,
		conditionsJSON,
		actionsJSON,
		definition.Active,
		definition.Priority,
		definition.TimeoutMinutes,
		definition.Version,
		definition.CreatedBy,
		definition.CreatedAt,
		definition.UpdatedAt,
		definition.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}

	return nil
}

// GetByID returns a definition, including soft-deleted ones.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = $1`

	definition, err := r.scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "definition", id, persistence.ErrDefinitionNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	return definition, nil
}

// List returns the organization's definitions that are not deleted, newest first.
func (r *DefinitionRepository) List(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE deleted_at IS NULL AND ($1 = '' OR organization_id = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	return collect(ctx, r.logger, rows, r.scanDefinition)
}

// ListActiveByTriggerKind returns executable definitions of a trigger kind, highest priority first.
func (r *DefinitionRepository) ListActiveByTriggerKind(ctx context.Context, kind models.TriggerKind) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE trigger_kind = $1 AND active AND deleted_at IS NULL
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions by trigger kind: %w", err)
	}

	return collect(ctx, r.logger, rows, r.scanDefinition)
}

// Delete soft deletes a definition by setting its deleted_at timestamp.
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE workflow_definitions
		SET deleted_at = COALESCE(deleted_at, NOW()), active = false, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewRecordError("Delete", "definition", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

func (r *DefinitionRepository) scanDefinition(row scanner) (*models.WorkflowDefinition, error) {
	var (
		definition models.WorkflowDefinition

		triggerConfigJSON, conditionsJSON, actionsJSON []byte
	)

	err := row.Scan(
		&definition.ID,
		&definition.OrganizationID,
		&definition.Name,
		&definition.Description,
		&definition.TriggerKind,
		&triggerConfigJSON,
		&conditionsJSON,
		&actionsJSON,
		&definition.Active,
		&definition.Priority,
		&definition.TimeoutMinutes,
		&definition.Version,
		&definition.CreatedBy,
		&definition.CreatedAt,
		&definition.UpdatedAt,
		&definition.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("trigger config", triggerConfigJSON, &definition.TriggerConfig)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("conditions", conditionsJSON, &definition.Conditions)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("actions", actionsJSON, &definition.Actions)
	if err != nil {
		return nil, err
	}

	return &definition, nil
}
