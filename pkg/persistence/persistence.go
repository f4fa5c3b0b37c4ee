// Package persistence provides the record store abstraction for workflow definitions, instances and custody records.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/custodian/pkg/models"
)

type Persistence interface {
	DefinitionRepository() DefinitionRepository
	InstanceRepository() InstanceRepository
	StepRepository() StepRepository
	ApprovalRepository() ApprovalRepository
	CustodyRepository() CustodyRepository
	DirectoryRepository() DirectoryRepository
	AlertRepository() AlertRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores workflow definitions. Deletion is always soft.
type DefinitionRepository interface {
	Save(ctx context.Context, definition *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error)
	ListActiveByTriggerKind(ctx context.Context, kind models.TriggerKind) ([]*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
}

// InstanceRepository stores workflow instances. Transition is the only way
// to change a stored instance: it applies the update only when the current
// status is one of from, and returns ErrStatusConflict otherwise.
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	Transition(ctx context.Context, id string, from []models.InstanceStatus, update models.InstanceUpdate) (*models.WorkflowInstance, error)
	ListByStatus(ctx context.Context, statuses ...models.InstanceStatus) ([]*models.WorkflowInstance, error)
	ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowInstance, error)
}

// StepRepository stores executed steps. Completed and failed steps are immutable.
type StepRepository interface {
	Create(ctx context.Context, step *models.WorkflowStep) error
	GetByID(ctx context.Context, id string) (*models.WorkflowStep, error)
	Update(ctx context.Context, step *models.WorkflowStep) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowStep, error)
}

// ApprovalRepository stores approval requests. Decide succeeds once per approval.
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*models.WorkflowApproval) error
	GetByID(ctx context.Context, id string) (*models.WorkflowApproval, error)
	Decide(ctx context.Context, id string, status models.ApprovalStatus, comments, actor string, decidedAt time.Time) (*models.WorkflowApproval, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowApproval, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.WorkflowApproval, error)
}

// CustodyRepository stores assets, locations and their movement and audit history.
type CustodyRepository interface {
	SaveAsset(ctx context.Context, asset *models.Asset) error
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	SaveLocation(ctx context.Context, location *models.Location) error
	GetLocation(ctx context.Context, id string) (*models.Location, error)
	FindLocationByName(ctx context.Context, organizationID, name string) (*models.Location, error)

	// RecordMovement stores the movement and moves the asset in one transaction.
	RecordMovement(ctx context.Context, movement *models.Movement, status models.AssetStatus) (*models.Asset, error)
	MovementsByAsset(ctx context.Context, assetID string) ([]*models.Movement, error)

	// UpdateAsset stores the mutated asset together with its audit record.
	UpdateAsset(ctx context.Context, asset *models.Asset, audit *models.AuditRecord) error
	AuditByEntity(ctx context.Context, entityID string) ([]*models.AuditRecord, error)
}

// DirectoryRepository resolves organization members.
type DirectoryRepository interface {
	SaveUser(ctx context.Context, user *models.User) error
	ActiveUsersByRole(ctx context.Context, organizationID, role string) ([]*models.User, error)
}

type AlertRepository interface {
	Save(ctx context.Context, alert *models.Alert) error
	ListByOrganization(ctx context.Context, organizationID string) ([]*models.Alert, error)
}
