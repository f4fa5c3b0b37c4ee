package file

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
)

const (
	instancesCollection = "instances"
	stepsCollection     = "steps"
)

// InstanceRepository handles workflow instance file operations.
type InstanceRepository struct {
	store
}

func (r *InstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if instance.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		instance.ID = id
	} else if r.exists(instancesCollection, instance.ID) {
		return persistence.NewRecordError("Create", "instance", instance.ID, persistence.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	instance.CreatedAt = now
	instance.UpdatedAt = now

	return r.write(instancesCollection, instance.ID, instance)
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, err := read[models.WorkflowInstance](r.store, instancesCollection, id, persistence.ErrInstanceNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "instance", id, err)
	}

	return instance, nil
}

// Transition applies the update only when the stored status is one of from.
func (r *InstanceRepository) Transition(
	_ context.Context,
	id string,
	from []models.InstanceStatus,
	update models.InstanceUpdate,
) (*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := read[models.WorkflowInstance](r.store, instancesCollection, id, persistence.ErrInstanceNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("Transition", "instance", id, err)
	}

	if !slices.Contains(from, instance.Status) {
		return instance, persistence.NewRecordError("Transition", "instance", id, persistence.ErrStatusConflict)
	}

	update.Apply(instance, time.Now().UTC())

	err = r.write(instancesCollection, id, instance)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

func (r *InstanceRepository) ListByStatus(_ context.Context, statuses ...models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances, err := readAll(r.store, instancesCollection, func(i *models.WorkflowInstance) bool {
		return slices.Contains(statuses, i.Status)
	})
	if err != nil {
		return nil, err
	}

	sortInstances(instances)

	return instances, nil
}

func (r *InstanceRepository) ListByDefinition(_ context.Context, definitionID string) ([]*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances, err := readAll(r.store, instancesCollection, func(i *models.WorkflowInstance) bool {
		return i.DefinitionID == definitionID
	})
	if err != nil {
		return nil, err
	}

	sortInstances(instances)

	return instances, nil
}

func sortInstances(instances []*models.WorkflowInstance) {
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})
}

// StepRepository handles workflow step file operations.
type StepRepository struct {
	store
}

func (r *StepRepository) Create(_ context.Context, step *models.WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if step.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		step.ID = id
	}

	return r.write(stepsCollection, step.ID, step)
}

func (r *StepRepository) GetByID(_ context.Context, id string) (*models.WorkflowStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, err := read[models.WorkflowStep](r.store, stepsCollection, id, persistence.ErrStepNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "step", id, err)
	}

	return step, nil
}

// Update replaces a step unless the stored one is already final.
func (r *StepRepository) Update(_ context.Context, step *models.WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := read[models.WorkflowStep](r.store, stepsCollection, step.ID, persistence.ErrStepNotFound)
	if err != nil {
		return persistence.NewRecordError("Update", "step", step.ID, err)
	}

	if current.Status.IsFinal() {
		return persistence.NewRecordError("Update", "step", step.ID, persistence.ErrStepFinalized)
	}

	return r.write(stepsCollection, step.ID, step)
}

// ListByInstance returns the instance's steps ordered by their order index.
func (r *StepRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps, err := readAll(r.store, stepsCollection, func(s *models.WorkflowStep) bool {
		return s.InstanceID == instanceID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].OrderIndex < steps[j].OrderIndex
	})

	return steps, nil
}
