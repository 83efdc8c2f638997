package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lessonbot/internal/models"
	"lessonbot/internal/timeparse"
)

// IsDateClosed reports whether operators closed the local date.
func (db *DB) IsDateClosed(ctx context.Context, date string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM closed_dates WHERE date = ?`, date).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check closed date: %w", err)
	}
	return count > 0, nil
}

// ClosedDateReason returns the closure reason for a date. The bool reports
// whether the date is closed at all; a closed date may carry an empty reason.
func (db *DB) ClosedDateReason(ctx context.Context, date string) (string, bool, error) {
	var reason sql.NullString
	err := db.QueryRowContext(ctx, `SELECT reason FROM closed_dates WHERE date = ?`, date).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get closed date reason: %w", err)
	}
	return reason.String, true, nil
}

// CloseDate marks a date closed. Re-closing replaces the reason.
func (db *DB) CloseDate(ctx context.Context, date, reason string) error {
	if _, err := timeparse.ParseDate(date); err != nil {
		return err
	}
	query := `INSERT INTO closed_dates (date, reason, created_at) VALUES (?, ?, ?)
	          ON CONFLICT(date) DO UPDATE SET reason = excluded.reason`
	if _, err := db.ExecContext(ctx, query, date, reason, nowText()); err != nil {
		return fmt.Errorf("failed to close date: %w", err)
	}
	return nil
}

// OpenDate reopens a date. Idempotent.
func (db *DB) OpenDate(ctx context.Context, date string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM closed_dates WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to open date: %w", err)
	}
	return nil
}

// ListClosedDates returns all closures in date order.
func (db *DB) ListClosedDates(ctx context.Context) ([]*models.ClosedDate, error) {
	rows, err := db.QueryContext(ctx, `SELECT date, reason, created_at FROM closed_dates ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to list closed dates: %w", err)
	}
	defer rows.Close()

	var items []*models.ClosedDate
	for rows.Next() {
		cd := &models.ClosedDate{}
		var reason sql.NullString
		var createdAt string
		if err := rows.Scan(&cd.Date, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan closed date: %w", err)
		}
		cd.Reason = reason.String
		if created, err := timeparse.ParseInstant(createdAt); err == nil {
			cd.CreatedAt = created
		}
		items = append(items, cd)
	}
	return items, rows.Err()
}
