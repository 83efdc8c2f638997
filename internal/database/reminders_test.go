package database

import (
	"context"
	"testing"
	"time"

	"lessonbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBookingWithReminders(t *testing.T, db *DB, userID int64, startsAt time.Time) (*models.Booking, []*models.Reminder) {
	t.Helper()
	ctx := context.Background()

	b := testBooking(userID, startsAt)
	require.NoError(t, db.ReserveSlot(ctx, b))

	var reminders []*models.Reminder
	for _, tag := range models.StudentLeads {
		lead, ok := models.LeadDuration(tag)
		require.True(t, ok)
		r := &models.Reminder{
			BookingID:   b.ID,
			UserID:      userID,
			Role:        models.RoleStudent,
			LeadTag:     tag,
			ScheduledAt: startsAt.Add(-lead),
		}
		require.NoError(t, db.SaveReminder(ctx, r))
		reminders = append(reminders, r)
	}
	return b, reminders
}

func TestSaveAndMarkReminder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	startsAt := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	_, reminders := seedBookingWithReminders(t, db, 100, startsAt)
	require.Len(t, reminders, 2)
	assert.NotZero(t, reminders[0].ID)

	got, err := db.GetReminder(ctx, reminders[0].ID)
	require.NoError(t, err)
	assert.False(t, got.Sent)
	assert.True(t, got.ScheduledAt.Equal(startsAt.Add(-4*time.Hour)))

	require.NoError(t, db.MarkReminderSent(ctx, got.ID))
	require.NoError(t, db.MarkReminderSent(ctx, got.ID))

	got, err = db.GetReminder(ctx, got.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent)
}

func TestUnsentRemindersSkipsCancelledBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	startsAt := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	active, _ := seedBookingWithReminders(t, db, 100, startsAt)
	cancelled, _ := seedBookingWithReminders(t, db, 200, startsAt.Add(time.Hour))
	require.NoError(t, db.CancelBooking(ctx, cancelled.ID))

	unsent, err := db.UnsentReminders(ctx)
	require.NoError(t, err)
	require.Len(t, unsent, 2)
	for _, r := range unsent {
		assert.Equal(t, active.ID, r.BookingID)
	}

	// Orphaned intents are excluded, not deleted.
	orphaned, err := db.RemindersForBooking(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Len(t, orphaned, 2)
}

func TestDueReminders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	startsAt := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	_, reminders := seedBookingWithReminders(t, db, 100, startsAt)

	// At T-4h the 4h intent is due, the 30m one is not.
	now := startsAt.Add(-4 * time.Hour)
	due, err := db.DueReminders(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.Lead4Hours, due[0].LeadTag)

	require.NoError(t, db.MarkReminderSent(ctx, reminders[0].ID))

	due, err = db.DueReminders(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Past the lesson start both would be due; only the unsent one remains.
	due, err = db.DueReminders(ctx, startsAt)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.Lead30Min, due[0].LeadTag)
}

func TestUnsentRemindersForDate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	onDate, _ := seedBookingWithReminders(t, db, 100, day)
	seedBookingWithReminders(t, db, 200, day.AddDate(0, 0, 1))

	intents, err := db.UnsentRemindersForDate(ctx, "2026-09-10")
	require.NoError(t, err)
	require.Len(t, intents, 2)
	for _, r := range intents {
		assert.Equal(t, onDate.ID, r.BookingID)
	}

	require.NoError(t, db.CancelBooking(ctx, onDate.ID))
	intents, err = db.UnsentRemindersForDate(ctx, "2026-09-10")
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestDeleteRemindersForBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b, _ := seedBookingWithReminders(t, db, 100, time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC))

	require.NoError(t, db.DeleteRemindersForBooking(ctx, b.ID))
	left, err := db.RemindersForBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	require.NoError(t, db.DeleteRemindersForBooking(ctx, b.ID))
}
