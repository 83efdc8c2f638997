package models

import "time"

type Booking struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Date      string    `json:"date"` // local date, YYYY-MM-DD
	Time      string    `json:"time"` // local wall time, HH:MM
	StartsAt  time.Time `json:"starts_at"`
	Branch    string    `json:"branch"`
	Purpose   string    `json:"purpose"`
	Status    string    `json:"status"` // active, cancelled
	CreatedAt time.Time `json:"created_at"`
}

func (b *Booking) IsActive() bool {
	return b != nil && b.Status == StatusActive
}
