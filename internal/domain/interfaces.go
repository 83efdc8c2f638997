package domain

import (
	"context"
	"time"

	"lessonbot/internal/models"
)

// BookingRepository is the persistence surface of the reservation engine.
type BookingRepository interface {
	IsSlotFree(ctx context.Context, instant time.Time) (bool, error)
	ReserveSlot(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64) error
	DeleteBooking(ctx context.Context, id int64) error
	UpdateBookingSlot(ctx context.Context, id int64, date, hhmm string, instant time.Time) error
	CountActiveForUserInWindow(ctx context.Context, userID int64, start, end time.Time) (int, error)
	ListActiveForUser(ctx context.Context, userID int64, now time.Time) ([]*models.Booking, error)
	ListUpcomingActive(ctx context.Context, now time.Time, offset, size int) ([]*models.Booking, int, error)
	PurgePast(ctx context.Context, now time.Time) (int, error)
	BulkCancelOnDate(ctx context.Context, date string) ([]*models.Booking, error)

	IsDateClosed(ctx context.Context, date string) (bool, error)
	ClosedDateReason(ctx context.Context, date string) (string, bool, error)
	CloseDate(ctx context.Context, date, reason string) error
	OpenDate(ctx context.Context, date string) error
	ListClosedDates(ctx context.Context) ([]*models.ClosedDate, error)

	SaveReminder(ctx context.Context, r *models.Reminder) error
	MarkReminderSent(ctx context.Context, id int64) error
	GetReminder(ctx context.Context, id int64) (*models.Reminder, error)
	UnsentReminders(ctx context.Context) ([]*models.Reminder, error)
	DueReminders(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	RemindersForBooking(ctx context.Context, bookingID int64) ([]*models.Reminder, error)
	UnsentRemindersForDate(ctx context.Context, date string) ([]*models.Reminder, error)
	DeleteRemindersForBooking(ctx context.Context, bookingID int64) error

	CreateUser(ctx context.Context, user *models.User) error
	SetUserLanguage(ctx context.Context, userID int64, language string) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// StateRepository stores dialog state keyed by user.
type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers reminder and escalation messages to users. Delivery
// errors are classified transient or permanent by notify.IsPermanent.
type Notifier interface {
	SendReminder(ctx context.Context, r *models.Reminder, booking *models.Booking) error
	NotifyOperators(ctx context.Context, text string) error
}

// ReminderScheduler arms and disarms delivery for persisted intents.
type ReminderScheduler interface {
	Schedule(ctx context.Context, booking *models.Booking) error
	CancelForBooking(bookingID int64)
	Replay(ctx context.Context) error
}

// SheetsWriter mirrors bookings into a spreadsheet.
type SheetsWriter interface {
	AppendBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

// SyncWorker enqueues spreadsheet mirror tasks for async processing.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking) error
}

// BookingService is the operation surface exposed to the presentation layer.
type BookingService interface {
	Reserve(ctx context.Context, userID int64, date, hhmm, branch, purpose string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID int64) error
	HardDelete(ctx context.Context, bookingID int64) error
	Reschedule(ctx context.Context, bookingID int64, date, hhmm string) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	IsSlotFree(ctx context.Context, date, hhmm string) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]*models.Booking, error)
	ListUpcoming(ctx context.Context, page int) ([]*models.Booking, int, error)
	CloseDate(ctx context.Context, date, reason string) ([]*models.Booking, error)
	OpenDate(ctx context.Context, date string) error
	ListClosedDates(ctx context.Context) ([]*models.ClosedDate, error)
	PurgePast(ctx context.Context) (int, error)
}

type UserService interface {
	IsAdmin(userID int64) bool
	SaveUser(ctx context.Context, user *models.User) error
	SetLanguage(ctx context.Context, userID int64, language string) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}
