package models

import "time"

const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

const (
	RoleStudent  = "student"
	RoleOperator = "operator"
)

// Lead tags label how far before the lesson a reminder fires.
const (
	Lead4Hours = "4h"
	Lead60Min  = "60m"
	Lead30Min  = "30m"
	Lead10Min  = "10m"
)

// LeadDuration maps a lead tag to its offset before the lesson start.
func LeadDuration(tag string) (time.Duration, bool) {
	switch tag {
	case Lead4Hours:
		return 4 * time.Hour, true
	case Lead60Min:
		return 60 * time.Minute, true
	case Lead30Min:
		return 30 * time.Minute, true
	case Lead10Min:
		return 10 * time.Minute, true
	default:
		return 0, false
	}
}

// StudentLeads and OperatorLeads are the intents created per booking.
var (
	StudentLeads  = []string{Lead4Hours, Lead30Min}
	OperatorLeads = []string{Lead60Min, Lead10Min}
)

const (
	// DefaultWeeklyQuota caps active bookings per user within the
	// Monday-anchored week of the target slot.
	DefaultWeeklyQuota = 50

	// DefaultSweepInterval is how often the dispatcher re-delivers
	// due-but-unsent reminders.
	DefaultSweepInterval = 60 // seconds

	// DefaultPaginationSize is the page size for upcoming listings.
	DefaultPaginationSize = 8

	// DefaultTimezone is the wall-clock zone lessons are booked in.
	DefaultTimezone = "Asia/Tashkent"

	// DefaultRedisTTL is the dialog state lifetime in Redis.
	DefaultRedisTTL = 24 * 60 * 60 // seconds

	// RateLimitMessages / RateLimitWindow bound user message frequency.
	RateLimitMessages = 20
	RateLimitWindow   = 60 // seconds
)
