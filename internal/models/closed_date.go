package models

import "time"

// ClosedDate blocks new reservations on a date. Existing bookings are not
// cancelled automatically; operators run a bulk cancel first if they want
// the date voided.
type ClosedDate struct {
	Date      string    `json:"date"` // YYYY-MM-DD
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
