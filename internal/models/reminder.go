package models

import "time"

// Reminder is a persisted delivery intent tied to a booking. The booking
// reference is non-owning: cascades are driven by the caller, never implicit.
type Reminder struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	UserID      int64     `json:"user_id"` // target chat
	Role        string    `json:"role"`    // student, operator
	LeadTag     string    `json:"lead_tag"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Sent        bool      `json:"sent"`
	CreatedAt   time.Time `json:"created_at"`
}
