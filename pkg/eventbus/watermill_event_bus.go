package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/custodian/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
	}
}

// Publish sends a lifecycle event keyed by organization so observers of one
// organization receive its events in order.
func (eb *WatermillEventBus) Publish(
	ctx context.Context,
	organizationID string,
	eventType events.EventType,
	payload map[string]any,
) error {
	envelope := events.NewEnvelope(organizationID, eventType, payload)

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	msg := message.NewMessage(envelope.ID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, organizationID)
	msg.Metadata.Set(events.OrganizationMetadataKey, organizationID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(eventType))

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	return nil
}

// PublishAlert sends a sensor alert to the inbound alert topic.
func (eb *WatermillEventBus) PublishAlert(ctx context.Context, alert *events.SensorAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal sensor alert: %w", err)
	}

	msg := message.NewMessage(watermill.NewULID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, alert.DeviceID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(alert.GetType()))

	err = eb.publisher.Publish(events.SensorAlertTopic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish sensor alert: %w", err)
	}

	return nil
}

// SubscribeAlerts consumes the alert topic in the background. Malformed
// messages are acked and dropped; handler failures are nacked for redelivery.
func (eb *WatermillEventBus) SubscribeAlerts(ctx context.Context, handler AlertHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.SensorAlertTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to sensor alerts: %w", err)
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))
			if eventType != "" && eventType != events.SensorAlertEvent {
				msg.Ack()

				continue
			}

			var alert events.SensorAlert

			err := json.Unmarshal(msg.Payload, &alert)
			if err != nil {
				eb.logger.ErrorContext(ctx, "Dropping malformed sensor alert", "message_id", msg.UUID, "error", err)
				msg.Ack()

				continue
			}

			err = handler(ctx, &alert)
			if err != nil {
				eb.logger.ErrorContext(ctx, "Failed to handle sensor alert",
					"device_id", alert.DeviceID, "alert_type", alert.AlertType, "error", err)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
