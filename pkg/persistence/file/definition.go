package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
)

const definitionsCollection = "definitions"

// DefinitionRepository handles workflow definition file operations.
type DefinitionRepository struct {
	store
}

// Save creates or fully replaces a definition.
func (r *DefinitionRepository) Save(_ context.Context, definition *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if definition.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		definition.ID = id
	}

	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	return r.write(definitionsCollection, definition.ID, definition)
}

// GetByID returns a definition, including soft-deleted ones so that past instances keep their linkage.
func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definition, err := read[models.WorkflowDefinition](r.store, definitionsCollection, id, persistence.ErrDefinitionNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "definition", id, err)
	}

	return definition, nil
}

// List returns the organization's definitions that are not deleted, newest first.
func (r *DefinitionRepository) List(_ context.Context, organizationID string) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions, err := readAll(r.store, definitionsCollection, func(d *models.WorkflowDefinition) bool {
		return d.DeletedAt == nil && (organizationID == "" || d.OrganizationID == organizationID)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].CreatedAt.After(definitions[j].CreatedAt)
	})

	return definitions, nil
}

// ListActiveByTriggerKind returns executable definitions of a trigger kind, highest priority first.
func (r *DefinitionRepository) ListActiveByTriggerKind(_ context.Context, kind models.TriggerKind) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions, err := readAll(r.store, definitionsCollection, func(d *models.WorkflowDefinition) bool {
		return d.TriggerKind == kind && d.IsExecutable()
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(definitions, func(i, j int) bool {
		if definitions[i].Priority != definitions[j].Priority {
			return definitions[i].Priority > definitions[j].Priority
		}

		return definitions[i].CreatedAt.Before(definitions[j].CreatedAt)
	})

	return definitions, nil
}

// Delete soft deletes a definition by setting its deleted_at timestamp.
func (r *DefinitionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	definition, err := read[models.WorkflowDefinition](r.store, definitionsCollection, id, persistence.ErrDefinitionNotFound)
	if err != nil {
		return persistence.NewRecordError("Delete", "definition", id, err)
	}

	if definition.DeletedAt != nil {
		return nil
	}

	now := time.Now().UTC()
	definition.DeletedAt = &now
	definition.Active = false
	definition.UpdatedAt = now

	return r.write(definitionsCollection, id, definition)
}
