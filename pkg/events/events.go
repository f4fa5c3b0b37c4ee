// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topics.
const (
	Topic            = "custodian.events"        // lifecycle events for observers
	SensorAlertTopic = "custodian.sensor.alerts" // inbound threshold violations
)

const (
	EventMetadataKey        = "key"
	EventTypeMetadataKey    = "event_type"
	OrganizationMetadataKey = "organization_id"
)

const (
	// Instance lifecycle events.
	InstanceStartedEvent          EventType = "instance.started"
	InstanceAwaitingApprovalEvent EventType = "instance.awaiting_approval"
	InstanceCompletedEvent        EventType = "instance.completed"
	InstanceFailedEvent           EventType = "instance.failed"
	InstanceRejectedEvent         EventType = "instance.rejected"
	InstanceCancelledEvent        EventType = "instance.cancelled"

	// AlertCreatedEvent is published by the ALERT action.
	AlertCreatedEvent EventType = "alert.created"

	// SensorAlertEvent is consumed from the ingestion pipeline.
	SensorAlertEvent EventType = "sensor.alert"
)

// Envelope is the wire shape of every published event.
type Envelope struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	OrganizationID string         `json:"organization_id"`
	Timestamp      time.Time      `json:"timestamp"`
	Payload        map[string]any `json:"payload,omitempty"`
}

func NewEnvelope(organizationID string, eventType EventType, payload map[string]any) Envelope {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return Envelope{
		ID:             id.String(),
		Type:           eventType,
		OrganizationID: organizationID,
		Timestamp:      time.Now().UTC(),
		Payload:        payload,
	}
}

// SensorAlert is a threshold violation detected by the sensor ingestion pipeline.
type SensorAlert struct {
	DeviceID       string    `json:"device_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	AlertType      string    `json:"alert_type"`
	CurrentValue   float64   `json:"current_value"`
	Threshold      *float64  `json:"threshold,omitempty"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

func (SensorAlert) GetType() EventType {
	return SensorAlertEvent
}

// InstancePayload builds the payload shared by all instance lifecycle events.
func InstancePayload(instanceID, definitionID, status, message string) map[string]any {
	payload := map[string]any{
		"instance_id":   instanceID,
		"definition_id": definitionID,
		"status":        status,
	}

	if message != "" {
		payload["message"] = message
	}

	return payload
}
