package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	channel "github.com/dukex/custodian/pkg/channels/gochannel"
	"github.com/dukex/custodian/pkg/eventbus"
	"github.com/dukex/custodian/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) (*eventbus.WatermillEventBus, *gochannel.GoChannel, context.Context) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	pub, sub := channel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, logger)

	ctx, cancel := context.WithCancel(t.Context())

	t.Cleanup(func() {
		cancel()
		require.NoError(t, bus.Close())
	})

	return bus, pub, ctx
}

func TestWatermillEventBus_PublishLifecycleEvent(t *testing.T) {
	bus, pubSub, ctx := newBus(t)

	messages, err := pubSub.Subscribe(ctx, events.Topic)
	require.NoError(t, err)

	err = bus.Publish(ctx, "org-1", events.InstanceCompletedEvent,
		events.InstancePayload("inst-1", "def-1", "COMPLETED", ""))
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "org-1", msg.Metadata.Get(events.EventMetadataKey))
		assert.Equal(t, string(events.InstanceCompletedEvent), msg.Metadata.Get(events.EventTypeMetadataKey))

		var envelope events.Envelope
		require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
		assert.Equal(t, events.InstanceCompletedEvent, envelope.Type)
		assert.Equal(t, "org-1", envelope.OrganizationID)
		assert.Equal(t, "inst-1", envelope.Payload["instance_id"])
		assert.NotContains(t, envelope.Payload, "message")

		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle event was not delivered")
	}
}

func TestWatermillEventBus_AlertRoundTrip(t *testing.T) {
	bus, _, ctx := newBus(t)

	received := make(chan *events.SensorAlert, 1)

	err := bus.SubscribeAlerts(ctx, func(_ context.Context, alert *events.SensorAlert) error {
		received <- alert

		return nil
	})
	require.NoError(t, err)

	threshold := 8.0
	err = bus.PublishAlert(ctx, &events.SensorAlert{
		DeviceID:     "sensor-7",
		AlertType:    "TEMP_HIGH",
		CurrentValue: 10.5,
		Threshold:    &threshold,
		TriggeredAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	select {
	case alert := <-received:
		assert.Equal(t, "sensor-7", alert.DeviceID)
		assert.Equal(t, "TEMP_HIGH", alert.AlertType)
		assert.InDelta(t, 10.5, alert.CurrentValue, 0.0001)
		require.NotNil(t, alert.Threshold)
	case <-time.After(5 * time.Second):
		t.Fatal("sensor alert was not delivered")
	}
}

func TestWatermillEventBus_AlertHandlerFailureIsRedelivered(t *testing.T) {
	bus, _, ctx := newBus(t)

	var calls atomic.Int32

	done := make(chan struct{})

	err := bus.SubscribeAlerts(ctx, func(_ context.Context, _ *events.SensorAlert) error {
		if calls.Add(1) == 1 {
			return errors.New("store unavailable")
		}

		close(done)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.PublishAlert(ctx, &events.SensorAlert{DeviceID: "sensor-1", AlertType: "TEMP_HIGH"}))

	select {
	case <-done:
		assert.Equal(t, int32(2), calls.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("failed alert was not redelivered")
	}
}

func TestNopPublisher(t *testing.T) {
	var publisher eventbus.Publisher = eventbus.NopPublisher{}

	assert.NoError(t, publisher.Publish(t.Context(), "org-1", events.InstanceStartedEvent, nil))
}
