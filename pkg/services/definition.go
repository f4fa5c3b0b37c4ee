package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Definition administers workflow definitions. Edits fully replace conditions
// and actions and bump the version; deletion is soft.
type Definition struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewDefinition creates a new definition service.
func NewDefinition(persistence persistence.Persistence, logger *slog.Logger) *Definition {
	return &Definition{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "definition_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Definition) HealthCheck(ctx context.Context) (string, bool) {
	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and stores a new definition at version 1.
func (s *Definition) Create(ctx context.Context, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	err := s.Validate(definition)
	if err != nil {
		return nil, err
	}

	definition.ID = ""
	definition.Version = 1
	definition.DeletedAt = nil

	err = s.persistence.DefinitionRepository().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	s.logger.InfoContext(ctx, "Definition created", "definition_id", definition.ID, "trigger_kind", definition.TriggerKind)

	return definition, nil
}

// Replace swaps the content of an existing definition and bumps its version.
// Identity, organization and creation data are kept from the stored one.
func (s *Definition) Replace(ctx context.Context, id string, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if definition == nil {
		return nil, NewValidationError("Replace", ErrDefinitionNil.Error(), ErrDefinitionNil)
	}

	current, err := s.persistence.DefinitionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	if current.DeletedAt != nil {
		return nil, &ServiceError{Op: "Replace", Code: "CONFLICT", Err: ErrDefinitionDeleted}
	}

	definition.ID = current.ID
	definition.OrganizationID = current.OrganizationID
	definition.CreatedAt = current.CreatedAt
	definition.CreatedBy = current.CreatedBy
	definition.Version = current.Version + 1

	err = s.Validate(definition)
	if err != nil {
		return nil, err
	}

	err = s.persistence.DefinitionRepository().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	s.logger.InfoContext(ctx, "Definition replaced", "definition_id", definition.ID, "version", definition.Version)

	return definition, nil
}

// SetActive toggles whether triggers start new instances of the definition.
func (s *Definition) SetActive(ctx context.Context, id string, active bool) (*models.WorkflowDefinition, error) {
	definition, err := s.persistence.DefinitionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	if definition.DeletedAt != nil {
		return nil, &ServiceError{Op: "SetActive", Code: "CONFLICT", Err: ErrDefinitionDeleted}
	}

	definition.Active = active

	err = s.persistence.DefinitionRepository().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	return definition, nil
}

func (s *Definition) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.persistence.DefinitionRepository().GetByID(ctx, id)
}

func (s *Definition) List(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error) {
	return s.persistence.DefinitionRepository().List(ctx, organizationID)
}

// Delete soft-deletes a definition. Existing instances keep referencing it.
func (s *Definition) Delete(ctx context.Context, id string) error {
	err := s.persistence.DefinitionRepository().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete definition: %w", err)
	}

	s.logger.InfoContext(ctx, "Definition deleted", "definition_id", id)

	return nil
}

// Validate checks struct constraints, the trigger configuration of the
// definition's kind and the parameters of every action.
func (s *Definition) Validate(definition *models.WorkflowDefinition) error {
	if definition == nil {
		return NewValidationError("Validate", ErrDefinitionNil.Error(), ErrDefinitionNil)
	}

	problems := make([]string, 0)

	var errs []error

	err := s.validate.Struct(definition)
	if err != nil {
		problems = append(problems, describe(err)...)
		errs = append(errs, err)
	}

	err = validateTrigger(definition)
	if err != nil {
		problems = append(problems, err.Error())
		errs = append(errs, err)
	}

	for i, action := range definition.Actions {
		if action.Config == nil {
			continue
		}

		if action.Config.ActionType() != action.Type {
			err := fmt.Errorf("%w: action %d is %s with %s config", ErrActionTypeMismatch, i+1, action.Type, action.Config.ActionType())
			problems = append(problems, err.Error())
			errs = append(errs, err)

			continue
		}

		err := s.validate.Struct(action.Config)
		if err != nil {
			for _, p := range describe(err) {
				problems = append(problems, fmt.Sprintf("action %d (%s): %s", i+1, action.Type, p))
			}

			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return NewValidationError("Validate", strings.Join(problems, "; "), errors.Join(errs...))
}

func validateTrigger(definition *models.WorkflowDefinition) error {
	config := definition.TriggerConfig

	switch definition.TriggerKind {
	case models.TriggerKindEventAlert:
		if config.Metric == "" {
			return fmt.Errorf("%w: alert trigger requires a metric", ErrTriggerConfigInvalid)
		}

		switch config.Operator {
		case "", models.OperatorGreaterThan, models.OperatorLessThan, models.OperatorEquals, models.OperatorNotEquals:
		default:
			return fmt.Errorf("%w: unsupported alert operator %q", ErrTriggerConfigInvalid, config.Operator)
		}

		if config.Operator != "" && config.Threshold == nil {
			return fmt.Errorf("%w: alert operator %s requires a threshold", ErrTriggerConfigInvalid, config.Operator)
		}
	case models.TriggerKindSchedule:
		_, _, err := models.ParseCron(config.CronExpression, config.Timezone)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTriggerConfigInvalid, err)
		}
	case models.TriggerKindManual, models.TriggerKindAPI:
		err := models.CompileSchema(config.PayloadSchema)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTriggerConfigInvalid, err)
		}
	}

	return nil
}

func describe(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	problems := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		problems = append(problems, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}

	return problems
}
