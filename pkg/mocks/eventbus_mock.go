package mocks

import (
	"context"

	"github.com/dukex/custodian/pkg/events"
	"github.com/dukex/custodian/pkg/notifier"
	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock implementation of eventbus.Publisher interface.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, organizationID string, eventType events.EventType, payload map[string]any) error {
	args := m.Called(ctx, organizationID, eventType, payload)

	return args.Error(0)
}

// MockNotifier is a mock implementation of notifier.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, notification notifier.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}
