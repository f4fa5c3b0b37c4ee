// Package eventbus provides the publish capability for lifecycle events and the
// inbound sensor alert subscription.
package eventbus

import (
	"context"

	"github.com/dukex/custodian/pkg/events"
)

// Publisher broadcasts an event to an organization's observers. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, organizationID string, eventType events.EventType, payload map[string]any) error
}

// AlertHandler processes one inbound sensor alert.
type AlertHandler func(ctx context.Context, alert *events.SensorAlert) error

// AlertSubscriber delivers inbound sensor alerts to a handler until ctx is done.
type AlertSubscriber interface {
	SubscribeAlerts(ctx context.Context, handler AlertHandler) error
}

type EventBus interface {
	Publisher
	AlertSubscriber
	PublishAlert(ctx context.Context, alert *events.SensorAlert) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, events.EventType, map[string]any) error {
	return nil
}
