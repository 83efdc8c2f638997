package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"lessonbot/internal/models"
	"lessonbot/internal/timeparse"
)

const bookingColumns = `id, user_id, date, time, start_ts, branch, purpose, status, created_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*models.Booking, error) {
	b := &models.Booking{}
	var startTS, createdAt string
	err := row.Scan(&b.ID, &b.UserID, &b.Date, &b.Time, &startTS, &b.Branch, &b.Purpose, &b.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	b.StartsAt, err = timeparse.ParseInstant(startTS)
	if err != nil {
		return nil, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	if created, err := timeparse.ParseInstant(createdAt); err == nil {
		b.CreatedAt = created
	}
	return b, nil
}

// IsSlotFree reports whether no active booking holds the canonical instant.
func (db *DB) IsSlotFree(ctx context.Context, instant time.Time) (bool, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE start_ts = ? AND status = ?`
	var count int
	err := db.QueryRowContext(ctx, query, timeparse.FormatInstant(instant), models.StatusActive).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return count == 0, nil
}

// ReserveSlot atomically checks slot availability and inserts the booking in
// one transaction. Of two concurrent racers for the same instant exactly one
// succeeds; the other gets ErrSlotTaken.
func (db *DB) ReserveSlot(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	startTS := timeparse.FormatInstant(booking.StartsAt)

	var count int
	queryCount := `SELECT COUNT(*) FROM bookings WHERE start_ts = ? AND status = ?`
	if err := tx.QueryRowContext(ctx, queryCount, startTS, models.StatusActive).Scan(&count); err != nil {
		return fmt.Errorf("failed to check slot in tx: %w", err)
	}
	if count > 0 {
		return ErrSlotTaken
	}

	now := time.Now().UTC()
	queryInsert := `INSERT INTO bookings (user_id, date, time, start_ts, branch, purpose, status, created_at)
	                VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.UserID,
		booking.Date,
		booking.Time,
		startTS,
		booking.Branch,
		booking.Purpose,
		models.StatusActive,
		timeparse.FormatInstant(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	booking.ID = id
	booking.Status = models.StatusActive
	booking.CreatedAt = now

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// CancelBooking soft-cancels a booking. Idempotent: cancelling an already
// cancelled or missing booking is a no-op.
func (db *DB) CancelBooking(ctx context.Context, id int64) error {
	query := `UPDATE bookings SET status = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, models.StatusCancelled, id); err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	return nil
}

// DeleteBooking removes the row and its reminder intents.
func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE booking_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reminders: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return tx.Commit()
}

// UpdateBookingSlot moves an active booking to a new slot, re-checking slot
// uniqueness inside the same transaction.
func (db *DB) UpdateBookingSlot(ctx context.Context, id int64, date, hhmm string, instant time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	startTS := timeparse.FormatInstant(instant)

	var count int
	queryCount := `SELECT COUNT(*) FROM bookings WHERE start_ts = ? AND status = ? AND id != ?`
	if err := tx.QueryRowContext(ctx, queryCount, startTS, models.StatusActive, id).Scan(&count); err != nil {
		return fmt.Errorf("failed to check slot in tx: %w", err)
	}
	if count > 0 {
		return ErrSlotTaken
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET date = ?, time = ?, start_ts = ? WHERE id = ? AND status = ?`,
		date, hhmm, startTS, id, models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to update booking slot: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// CountActiveForUserInWindow counts the user's active bookings with
// start_ts in [start, end). Comparison is by parsed instant so mixed
// legacy formats never skew the quota.
func (db *DB) CountActiveForUserInWindow(ctx context.Context, userID int64, start, end time.Time) (int, error) {
	query := `SELECT start_ts FROM bookings WHERE user_id = ? AND status = ?`
	rows, err := db.QueryContext(ctx, query, userID, models.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings in window: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var startTS string
		if err := rows.Scan(&startTS); err != nil {
			return 0, fmt.Errorf("failed to scan start_ts: %w", err)
		}
		instant, err := timeparse.ParseInstant(startTS)
		if err != nil {
			continue
		}
		if !instant.Before(start) && instant.Before(end) {
			count++
		}
	}
	return count, rows.Err()
}

// ListActiveForUser returns the user's active upcoming bookings ordered by
// instant. Rows with unparsable timestamps are skipped, not fatal.
func (db *DB) ListActiveForUser(ctx context.Context, userID int64, now time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? AND status = ?`
	rows, err := db.QueryContext(ctx, query, userID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	defer rows.Close()

	return collectUpcoming(rows, now)
}

// ListUpcomingActive returns one page of all active upcoming bookings in
// ascending instant order plus the total upcoming count.
func (db *DB) ListUpcomingActive(ctx context.Context, now time.Time, offset, size int) ([]*models.Booking, int, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ?`
	rows, err := db.QueryContext(ctx, query, models.StatusActive)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list upcoming bookings: %w", err)
	}
	defer rows.Close()

	upcoming, err := collectUpcoming(rows, now)
	if err != nil {
		return nil, 0, err
	}

	total := len(upcoming)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	end := offset + size
	if size <= 0 || end > total {
		end = total
	}
	return upcoming[offset:end], total, nil
}

func collectUpcoming(rows *sql.Rows, now time.Time) ([]*models.Booking, error) {
	var items []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			// Unparsable legacy row: skip it rather than abort the listing.
			continue
		}
		if !b.StartsAt.Before(now) {
			items = append(items, b)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StartsAt.Before(items[j].StartsAt) })
	return items, nil
}

// ListBookingsBetween returns all bookings whose local date falls in
// [from, to] inclusive, any status, ordered by date and time.
func (db *DB) ListBookingsBetween(ctx context.Context, from, to string) ([]*models.Booking, error) {
	if _, err := timeparse.ParseDate(from); err != nil {
		return nil, err
	}
	if _, err := timeparse.ParseDate(to); err != nil {
		return nil, err
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date >= ? AND date <= ? ORDER BY date, time`
	rows, err := db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings between dates: %w", err)
	}
	defer rows.Close()

	var items []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			continue
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings between dates: %w", err)
	}
	return items, nil
}

// PurgePast hard-deletes bookings whose instant is strictly before now,
// cascading their reminder intents. Returns the number of removed bookings.
func (db *DB) PurgePast(ctx context.Context, now time.Time) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, start_ts FROM bookings`)
	if err != nil {
		return 0, fmt.Errorf("failed to select bookings for purge: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		var startTS string
		if err := rows.Scan(&id, &startTS); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan booking for purge: %w", err)
		}
		instant, err := timeparse.ParseInstant(startTS)
		if err != nil {
			continue
		}
		if instant.Before(now) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to iterate bookings for purge: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}
	if err := db.deleteBookingsByID(ctx, ids); err != nil {
		return 0, err
	}
	db.logger.Info().Int("count", len(ids)).Msg("Purged past bookings")
	return len(ids), nil
}

// BulkCancelOnDate hard-cancels all active bookings on a local date and
// returns the removed rows so callers can notify their owners.
func (db *DB) BulkCancelOnDate(ctx context.Context, date string) ([]*models.Booking, error) {
	if _, err := timeparse.ParseDate(date); err != nil {
		return nil, err
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = ? AND status = ?`
	rows, err := db.QueryContext(ctx, query, date, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to select bookings on date: %w", err)
	}

	var removed []*models.Booking
	var ids []int64
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			continue
		}
		removed = append(removed, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate bookings on date: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}
	if err := db.deleteBookingsByID(ctx, ids); err != nil {
		return nil, err
	}
	db.logger.Info().Str("date", date).Int("count", len(ids)).Msg("Bulk cancelled bookings")
	return removed, nil
}

func (db *DB) deleteBookingsByID(ctx context.Context, ids []int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE booking_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete reminders: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete bookings: %w", err)
	}
	return tx.Commit()
}
