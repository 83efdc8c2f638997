package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusPublishJSON(t *testing.T) {
	bus := NewEventBus()

	var got []*Event
	bus.Subscribe(EventBookingCreated, func(e *Event) error {
		got = append(got, e)
		return nil
	})
	bus.Subscribe(EventBookingCancelled, func(e *Event) error {
		t.Fatal("handler for another type should not fire")
		return nil
	})

	payload := BookingEventPayload{BookingID: 7, UserID: 100, Date: "2026-09-10", Time: "09:00"}
	require.NoError(t, bus.PublishJSON(EventBookingCreated, payload))

	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	var decoded BookingEventPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestEventBusNilSafe(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventBookingCreated, nil))
}

func TestEventBusMultipleHandlers(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(EventDateClosed, func(e *Event) error {
			calls++
			return nil
		})
	}

	require.NoError(t, bus.PublishJSON(EventDateClosed, DateEventPayload{Date: "2026-09-10"}))
	assert.Equal(t, 3, calls)
}
