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

const (
	assetColumns    = `id, organization_id, name, current_location_id, status, attributes, updated_at`
	locationColumns = `id, organization_id, name, kind`
	movementColumns = `id, organization_id, asset_id, from_location_id, to_location_id, kind, reason, actor_id, instance_id, occurred_at`
	auditColumns    = `id, organization_id, entity_type, entity_id, action, actor_id, old_values, new_values, instance_id, created_at`
)

// CustodyRepository handles asset, location, movement and audit database operations.
type CustodyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCustodyRepository creates a new custody repository.
func NewCustodyRepository(db *sql.DB, logger *slog.Logger) *CustodyRepository {
	return &CustodyRepository{db: db, logger: logger}
}

func (r *CustodyRepository) SaveAsset(ctx context.Context, asset *models.Asset) error {
	if asset.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		asset.ID = id
	}

	asset.UpdatedAt = time.Now().UTC()

	attributesJSON, err := jsonColumn("attributes", asset.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			current_location_id = EXCLUDED.current_location_id,
			status = EXCLUDED.status,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		asset.ID,
		asset.OrganizationID,
		asset.Name,
		asset.CurrentLocationID,
		asset.Status,
		attributesJSON,
		asset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}

	return nil
}

func (r *CustodyRepository) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetAsset", "asset", id, persistence.ErrAssetNotFound)
		}

		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}

	return asset, nil
}

func (r *CustodyRepository) SaveLocation(ctx context.Context, location *models.Location) error {
	if location.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		location.ID = id
	}

	query := `
		INSERT INTO locations (` + locationColumns + `)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			kind = EXCLUDED.kind
	`

	_, err := r.db.ExecContext(ctx, query, location.ID, location.OrganizationID, location.Name, location.Kind)
	if err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}

	return nil
}

func (r *CustodyRepository) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`

	location, err := scanLocation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetLocation", "location", id, persistence.ErrLocationNotFound)
		}

		return nil, fmt.Errorf("failed to scan location: %w", err)
	}

	return location, nil
}

// FindLocationByName matches names case-insensitively within the organization.
func (r *CustodyRepository) FindLocationByName(ctx context.Context, organizationID, name string) (*models.Location, error) {
	query := `
		SELECT ` + locationColumns + `
		FROM locations
		WHERE organization_id = $1 AND LOWER(name) = LOWER($2)
		ORDER BY id
		LIMIT 1
	`

	location, err := scanLocation(r.db.QueryRowContext(ctx, query, organizationID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("FindLocationByName", "location", name, persistence.ErrLocationNotFound)
		}

		return nil, fmt.Errorf("failed to scan location: %w", err)
	}

	return location, nil
}

// RecordMovement locks the asset row, stores the movement and relocates the asset in one transaction.
func (r *CustodyRepository) RecordMovement(
	ctx context.Context,
	movement *models.Movement,
	status models.AssetStatus,
) (*models.Asset, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	asset, err := scanAsset(tx.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, movement.AssetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.NewRecordError("RecordMovement", "asset", movement.AssetID, persistence.ErrAssetNotFound)

			return nil, err
		}

		return nil, fmt.Errorf("failed to lock asset: %w", err)
	}

	var exists bool

	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, movement.ToLocationID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check location: %w", err)
	}

	if !exists {
		err = persistence.NewRecordError("RecordMovement", "location", movement.ToLocationID, persistence.ErrLocationNotFound)

		return nil, err
	}

	if movement.ID == "" {
		movement.ID, err = newID()
		if err != nil {
			return nil, err
		}
	}

	if movement.OccurredAt.IsZero() {
		movement.OccurredAt = time.Now().UTC()
	}

	movement.FromLocationID = asset.CurrentLocationID

	_, err = tx.ExecContext(ctx, `
		INSERT INTO movements (`+movementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		movement.ID,
		movement.OrganizationID,
		movement.AssetID,
		movement.FromLocationID,
		movement.ToLocationID,
		movement.Kind,
		movement.Reason,
		movement.ActorID,
		movement.InstanceID,
		movement.OccurredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record movement: %w", err)
	}

	asset.CurrentLocationID = movement.ToLocationID
	asset.Status = status
	asset.UpdatedAt = movement.OccurredAt

	_, err = tx.ExecContext(ctx,
		`UPDATE assets SET current_location_id = $2, status = $3, updated_at = $4 WHERE id = $1`,
		asset.ID, asset.CurrentLocationID, asset.Status, asset.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to move asset: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return asset, nil
}

func (r *CustodyRepository) MovementsByAsset(ctx context.Context, assetID string) ([]*models.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE asset_id = $1 ORDER BY occurred_at`

	rows, err := r.db.QueryContext(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}

	return collect(ctx, r.logger, rows, scanMovement)
}

// UpdateAsset writes the asset and its audit record in one transaction.
func (r *CustodyRepository) UpdateAsset(ctx context.Context, asset *models.Asset, audit *models.AuditRecord) error {
	if audit.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		audit.ID = id
	}

	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	asset.UpdatedAt = audit.CreatedAt

	attributesJSON, err := jsonColumn("attributes", asset.Attributes)
	if err != nil {
		return err
	}

	oldJSON, err := jsonColumn("old values", audit.OldValues)
	if err != nil {
		return err
	}

	newJSON, err := jsonColumn("new values", audit.NewValues)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE assets SET name = $2, current_location_id = $3, status = $4, attributes = $5, updated_at = $6
		WHERE id = $1
	`, asset.ID, asset.Name, asset.CurrentLocationID, asset.Status, attributesJSON, asset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = persistence.NewRecordError("UpdateAsset", "asset", asset.ID, persistence.ErrAssetNotFound)

		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_records (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		audit.ID,
		audit.OrganizationID,
		audit.EntityType,
		audit.EntityID,
		audit.Action,
		audit.ActorID,
		oldJSON,
		newJSON,
		audit.InstanceID,
		audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *CustodyRepository) AuditByEntity(ctx context.Context, entityID string) ([]*models.AuditRecord, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_records WHERE entity_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}

	return collect(ctx, r.logger, rows, scanAudit)
}

func scanAsset(row scanner) (*models.Asset, error) {
	var (
		asset          models.Asset
		attributesJSON []byte
	)

	err := row.Scan(
		&asset.ID,
		&asset.OrganizationID,
		&asset.Name,
		&asset.CurrentLocationID,
		&asset.Status,
		&attributesJSON,
		&asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("attributes", attributesJSON, &asset.Attributes)
	if err != nil {
		return nil, err
	}

	return &asset, nil
}

func scanLocation(row scanner) (*models.Location, error) {
	var location models.Location

	err := row.Scan(&location.ID, &location.OrganizationID, &location.Name, &location.Kind)
	if err != nil {
		return nil, err
	}

	return &location, nil
}

func scanMovement(row scanner) (*models.Movement, error) {
	var movement models.Movement

	err := row.Scan(
		&movement.ID,
		&movement.OrganizationID,
		&movement.AssetID,
		&movement.FromLocationID,
		&movement.ToLocationID,
		&movement.Kind,
		&movement.Reason,
		&movement.ActorID,
		&movement.InstanceID,
		&movement.OccurredAt,
	)
	if err != nil {
		return nil, err
	}

	return &movement, nil
}

func scanAudit(row scanner) (*models.AuditRecord, error) {
	var (
		audit            models.AuditRecord
		oldJSON, newJSON []byte
	)

	err := row.Scan(
		&audit.ID,
		&audit.OrganizationID,
		&audit.EntityType,
		&audit.EntityID,
		&audit.Action,
		&audit.ActorID,
		&oldJSON,
		&newJSON,
		&audit.InstanceID,
		&audit.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("old values", oldJSON, &audit.OldValues)
	if err != nil {
		return nil, err
	}

	err = fromJSONColumn("new values", newJSON, &audit.NewValues)
	if err != nil {
		return nil, err
	}

	return &audit, nil
}
