package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lessonbot/internal/models"
	"lessonbot/internal/timeparse"
)

const reminderColumns = `id, booking_id, user_id, role, lead_tag, scheduled_ts, sent, created_at`

func scanReminder(row interface{ Scan(...interface{}) error }) (*models.Reminder, error) {
	r := &models.Reminder{}
	var scheduledTS, createdAt string
	var sent int
	err := row.Scan(&r.ID, &r.BookingID, &r.UserID, &r.Role, &r.LeadTag, &scheduledTS, &sent, &createdAt)
	if err != nil {
		return nil, err
	}
	r.Sent = sent != 0
	r.ScheduledAt, err = timeparse.ParseInstant(scheduledTS)
	if err != nil {
		return nil, fmt.Errorf("reminder %d: %w", r.ID, err)
	}
	if created, err := timeparse.ParseInstant(createdAt); err == nil {
		r.CreatedAt = created
	}
	return r, nil
}

// SaveReminder persists a reminder intent with sent=0.
func (db *DB) SaveReminder(ctx context.Context, r *models.Reminder) error {
	query := `INSERT INTO reminders (booking_id, user_id, role, lead_tag, scheduled_ts, sent, created_at)
	          VALUES (?, ?, ?, ?, ?, 0, ?)`
	result, err := db.ExecContext(ctx, query,
		r.BookingID, r.UserID, r.Role, r.LeadTag,
		timeparse.FormatInstant(r.ScheduledAt), nowText())
	if err != nil {
		return fmt.Errorf("failed to save reminder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get reminder id: %w", err)
	}
	r.ID = id
	return nil
}

// MarkReminderSent flips the sent flag. Idempotent.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	if _, err := db.ExecContext(ctx, `UPDATE reminders SET sent = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

// UnsentReminders returns unsent intents whose booking is still active.
// Intents orphaned by a cancelled booking are excluded without deletion.
func (db *DB) UnsentReminders(ctx context.Context) ([]*models.Reminder, error) {
	query := `SELECT r.id, r.booking_id, r.user_id, r.role, r.lead_tag, r.scheduled_ts, r.sent, r.created_at
	          FROM reminders r
	          JOIN bookings b ON b.id = r.booking_id
	          WHERE r.sent = 0 AND b.status = ?`
	return db.queryReminders(ctx, query, models.StatusActive)
}

// DueReminders returns unsent intents for active bookings whose scheduled
// instant is at or before now.
func (db *DB) DueReminders(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	all, err := db.UnsentReminders(ctx)
	if err != nil {
		return nil, err
	}
	var due []*models.Reminder
	for _, r := range all {
		if !r.ScheduledAt.After(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

// UnsentRemindersForDate returns unsent intents whose active booking falls
// on the given calendar date.
func (db *DB) UnsentRemindersForDate(ctx context.Context, date string) ([]*models.Reminder, error) {
	query := `SELECT r.id, r.booking_id, r.user_id, r.role, r.lead_tag, r.scheduled_ts, r.sent, r.created_at
	          FROM reminders r
	          JOIN bookings b ON b.id = r.booking_id
	          WHERE r.sent = 0 AND b.status = ? AND b.date = ?`
	return db.queryReminders(ctx, query, models.StatusActive, date)
}

// RemindersForBooking returns every intent for a booking, sent or not.
func (db *DB) RemindersForBooking(ctx context.Context, bookingID int64) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE booking_id = ? ORDER BY scheduled_ts`
	return db.queryReminders(ctx, query, bookingID)
}

// DeleteRemindersForBooking removes all intents for a booking.
func (db *DB) DeleteRemindersForBooking(ctx context.Context, bookingID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM reminders WHERE booking_id = ?`, bookingID); err != nil {
		return fmt.Errorf("failed to delete reminders for booking: %w", err)
	}
	return nil
}

// GetReminder fetches one intent.
func (db *DB) GetReminder(ctx context.Context, id int64) (*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = ?`
	r, err := scanReminder(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reminder %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return r, nil
}

func (db *DB) queryReminders(ctx context.Context, query string, args ...interface{}) ([]*models.Reminder, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var items []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			continue
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", err)
	}
	return items, nil
}
