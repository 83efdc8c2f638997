package models

import "time"

// User is created on first contact and never deleted. Only the language
// is mutated afterwards.
type User struct {
	ID        int64     `json:"id"` // telegram chat id
	Language  string    `json:"language"`
	FirstName string    `json:"first_name"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
