package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingCancelled = "booking_cancelled"
	EventBookingMoved     = "booking_moved"
	EventDateClosed       = "date_closed"
	EventDateOpened       = "date_opened"
	EventReminderSent     = "reminder_sent"
)

// BookingEventPayload is the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID int64     `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	StartsAt  time.Time `json:"starts_at"`
	Status    string    `json:"status"`
	Branch    string    `json:"branch,omitempty"`
	Purpose   string    `json:"purpose,omitempty"`
}

// ReminderEventPayload marks one delivered reminder.
type ReminderEventPayload struct {
	ReminderID int64  `json:"reminder_id"`
	BookingID  int64  `json:"booking_id"`
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	LeadTag    string `json:"lead_tag"`
}

// DateEventPayload describes a closure change.
type DateEventPayload struct {
	Date      string `json:"date"`
	Reason    string `json:"reason,omitempty"`
	Cancelled int    `json:"cancelled,omitempty"`
}

// Event is a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
