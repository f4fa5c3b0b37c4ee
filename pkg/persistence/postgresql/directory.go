package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/lib/pq"
)

// DirectoryRepository handles organization member database operations.
type DirectoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDirectoryRepository creates a new directory repository.
func NewDirectoryRepository(db *sql.DB, logger *slog.Logger) *DirectoryRepository {
	return &DirectoryRepository{db: db, logger: logger}
}

func (r *DirectoryRepository) SaveUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		user.ID = id
	}

	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}

	query := `
		INSERT INTO users (id, organization_id, name, email, roles, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			roles = EXCLUDED.roles,
			active = EXCLUDED.active
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.OrganizationID, user.Name, user.Email, pq.Array(roles), user.Active)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// ActiveUsersByRole returns active members holding the role, ordered by id.
func (r *DirectoryRepository) ActiveUsersByRole(ctx context.Context, organizationID, role string) ([]*models.User, error) {
	query := `
		SELECT id, organization_id, name, email, roles, active
		FROM users
		WHERE organization_id = $1 AND active AND $2 = ANY(roles)
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by role: %w", err)
	}

	return collect(ctx, r.logger, rows, func(row scanner) (*models.User, error) {
		var user models.User

		err := row.Scan(&user.ID, &user.OrganizationID, &user.Name, &user.Email, pq.Array(&user.Roles), &user.Active)
		if err != nil {
			return nil, err
		}

		return &user, nil
	})
}

// AlertRepository handles workflow alert database operations.
type AlertRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *sql.DB, logger *slog.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger}
}

func (r *AlertRepository) Save(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		alert.ID = id
	}

	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alerts (id, organization_id, device_id, type, severity, message, threshold, current_value, instance_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.OrganizationID,
		alert.DeviceID,
		alert.Type,
		alert.Severity,
		alert.Message,
		alert.Threshold,
		alert.CurrentValue,
		alert.InstanceID,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	return nil
}

func (r *AlertRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Alert, error) {
	query := `
		SELECT id, organization_id, device_id, type, severity, message, threshold, current_value, instance_id, created_at
		FROM alerts
		WHERE organization_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	return collect(ctx, r.logger, rows, func(row scanner) (*models.Alert, error) {
		var alert models.Alert

		err := row.Scan(
			&alert.ID,
			&alert.OrganizationID,
			&alert.DeviceID,
			&alert.Type,
			&alert.Severity,
			&alert.Message,
			&alert.Threshold,
			&alert.CurrentValue,
			&alert.InstanceID,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		return &alert, nil
	})
}
