package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/custodian/pkg/models"
)

const (
	usersCollection  = "users"
	alertsCollection = "alerts"
)

// DirectoryRepository handles organization member file operations.
type DirectoryRepository struct {
	store
}

func (r *DirectoryRepository) SaveUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		user.ID = id
	}

	return r.write(usersCollection, user.ID, user)
}

// ActiveUsersByRole returns active members holding the role, ordered by id.
func (r *DirectoryRepository) ActiveUsersByRole(_ context.Context, organizationID, role string) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, err := readAll(r.store, usersCollection, func(u *models.User) bool {
		return u.Active && u.OrganizationID == organizationID && u.HasRole(role)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})

	return users, nil
}

// AlertRepository handles workflow alert file operations.
type AlertRepository struct {
	store
}

func (r *AlertRepository) Save(_ context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

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

	return r.write(alertsCollection, alert.ID, alert)
}

func (r *AlertRepository) ListByOrganization(_ context.Context, organizationID string) ([]*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alerts, err := readAll(r.store, alertsCollection, func(a *models.Alert) bool {
		return a.OrganizationID == organizationID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
	})

	return alerts, nil
}
