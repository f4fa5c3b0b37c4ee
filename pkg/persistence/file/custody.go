package file

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
)

const (
	assetsCollection    = "assets"
	locationsCollection = "locations"
	movementsCollection = "movements"
	auditCollection     = "audit"
)

// CustodyRepository handles asset, location, movement and audit file operations.
type CustodyRepository struct {
	store
}

func (r *CustodyRepository) SaveAsset(_ context.Context, asset *models.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if asset.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		asset.ID = id
	}

	asset.UpdatedAt = time.Now().UTC()

	return r.write(assetsCollection, asset.ID, asset)
}

func (r *CustodyRepository) GetAsset(_ context.Context, id string) (*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, err := read[models.Asset](r.store, assetsCollection, id, persistence.ErrAssetNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("GetAsset", "asset", id, err)
	}

	return asset, nil
}

func (r *CustodyRepository) SaveLocation(_ context.Context, location *models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if location.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		location.ID = id
	}

	return r.write(locationsCollection, location.ID, location)
}

func (r *CustodyRepository) GetLocation(_ context.Context, id string) (*models.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	location, err := read[models.Location](r.store, locationsCollection, id, persistence.ErrLocationNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("GetLocation", "location", id, err)
	}

	return location, nil
}

// FindLocationByName matches names case-insensitively within the organization.
func (r *CustodyRepository) FindLocationByName(_ context.Context, organizationID, name string) (*models.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locations, err := readAll(r.store, locationsCollection, func(l *models.Location) bool {
		return l.OrganizationID == organizationID && strings.EqualFold(l.Name, name)
	})
	if err != nil {
		return nil, err
	}

	if len(locations) == 0 {
		return nil, persistence.NewRecordError("FindLocationByName", "location", name, persistence.ErrLocationNotFound)
	}

	return locations[0], nil
}

// RecordMovement writes the movement and the moved asset while holding the store lock.
func (r *CustodyRepository) RecordMovement(
	_ context.Context,
	movement *models.Movement,
	status models.AssetStatus,
) (*models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, err := read[models.Asset](r.store, assetsCollection, movement.AssetID, persistence.ErrAssetNotFound)
	if err != nil {
		return nil, persistence.NewRecordError("RecordMovement", "asset", movement.AssetID, err)
	}

	if !r.exists(locationsCollection, movement.ToLocationID) {
		return nil, persistence.NewRecordError("RecordMovement", "location", movement.ToLocationID, persistence.ErrLocationNotFound)
	}

	if movement.ID == "" {
		id, err := newID()
		if err != nil {
			return nil, err
		}

		movement.ID = id
	}

	if movement.OccurredAt.IsZero() {
		movement.OccurredAt = time.Now().UTC()
	}

	movement.FromLocationID = asset.CurrentLocationID

	previous := *asset
	asset.CurrentLocationID = movement.ToLocationID
	asset.Status = status
	asset.UpdatedAt = movement.OccurredAt

	err = r.write(assetsCollection, asset.ID, asset)
	if err != nil {
		return nil, err
	}

	err = r.write(movementsCollection, movement.ID, movement)
	if err != nil {
		// best effort restore so the asset does not point at an unrecorded location
		_ = r.write(assetsCollection, previous.ID, &previous)

		return nil, err
	}

	return asset, nil
}

func (r *CustodyRepository) MovementsByAsset(_ context.Context, assetID string) ([]*models.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	movements, err := readAll(r.store, movementsCollection, func(m *models.Movement) bool {
		return m.AssetID == assetID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(movements, func(i, j int) bool {
		return movements[i].OccurredAt.Before(movements[j].OccurredAt)
	})

	return movements, nil
}

func (r *CustodyRepository) UpdateAsset(_ context.Context, asset *models.Asset, audit *models.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.exists(assetsCollection, asset.ID) {
		return persistence.NewRecordError("UpdateAsset", "asset", asset.ID, persistence.ErrAssetNotFound)
	}

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

	err := r.write(auditCollection, audit.ID, audit)
	if err != nil {
		return err
	}

	return r.write(assetsCollection, asset.ID, asset)
}

func (r *CustodyRepository) AuditByEntity(_ context.Context, entityID string) ([]*models.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, err := readAll(r.store, auditCollection, func(a *models.AuditRecord) bool {
		return a.EntityID == entityID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}
