package database

import (
	"context"
	"database/sql"
	"fmt"

	"lessonbot/internal/timeparse"
)

// A migration applies one idempotent schema or data change inside the
// caller's transaction. Migrations are keyed by name and recorded in the
// _migrations table, so each one runs at most once per database.
type migration struct {
	name  string
	apply func(tx *sql.Tx) error
}

// Registration order is execution order for unapplied migrations.
var migrations = []migration{
	{"001_booking_indices", migrateBookingIndices},
	{"002_slot_uniqueness_guard", migrateSlotUniquenessGuard},
	{"003_sync_queue", migrateSyncQueue},
	{"004_canonical_timestamps", migrateCanonicalTimestamps},
}

// Applied returns the set of migration names already recorded.
func (db *DB) Applied(ctx context.Context) (map[string]bool, error) {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration name: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// RunPending applies every unapplied migration in registration order, each
// in its own transaction together with its bookkeeping row. Returns the
// names applied during this call.
func (db *DB) RunPending(ctx context.Context) ([]string, error) {
	applied, err := db.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range migrations {
		if applied[m.name] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return ran, fmt.Errorf("failed to begin migration %s: %w", m.name, err)
		}
		if err := m.apply(tx); err != nil {
			_ = tx.Rollback()
			return ran, fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations (name, applied_at) VALUES (?, ?)`, m.name, nowText()); err != nil {
			_ = tx.Rollback()
			return ran, fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return ran, fmt.Errorf("failed to commit migration %s: %w", m.name, err)
		}

		db.logger.Info().Str("migration", m.name).Msg("Applied migration")
		ran = append(ran, m.name)
	}
	return ran, nil
}

func migrateBookingIndices(tx *sql.Tx) error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_bookings_start_status ON bookings(start_ts, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_unsent ON reminders(sent, scheduled_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_booking ON reminders(booking_id)`,
	}
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// A partial unique index backs up the transactional check-then-insert, so
// even a bug bypassing ReserveSlot cannot double-book an instant.
func migrateSlotUniquenessGuard(tx *sql.Tx) error {
	_, err := tx.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_slot_unique ON bookings(start_ts) WHERE status = 'active'`)
	return err
}

func migrateSyncQueue(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS sync_queue (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        task_type TEXT NOT NULL,
        booking_id INTEGER,
        payload TEXT,
        status TEXT NOT NULL DEFAULT 'pending',
        retry_count INTEGER NOT NULL DEFAULT 0,
        last_error TEXT,
        created_at TIMESTAMP,
        processed_at TIMESTAMP,
        next_retry_at TIMESTAMP
    )`)
	return err
}

// Rewrites legacy timestamp text into the canonical format. Unparsable
// rows are left untouched; reads still degrade gracefully on them.
func migrateCanonicalTimestamps(tx *sql.Tx) error {
	targets := []struct {
		table, idCol, tsCol string
	}{
		{"bookings", "id", "start_ts"},
		{"bookings", "id", "created_at"},
		{"reminders", "id", "scheduled_ts"},
		{"reminders", "id", "created_at"},
	}

	for _, t := range targets {
		rows, err := tx.Query(fmt.Sprintf(`SELECT %s, %s FROM %s`, t.idCol, t.tsCol, t.table))
		if err != nil {
			return err
		}

		type rewrite struct {
			id   int64
			text string
		}
		var rewrites []rewrite
		for rows.Next() {
			var id int64
			var raw string
			if err := rows.Scan(&id, &raw); err != nil {
				rows.Close()
				return err
			}
			instant, err := timeparse.ParseInstant(raw)
			if err != nil {
				continue
			}
			canonical := timeparse.FormatInstant(instant)
			if canonical != raw {
				rewrites = append(rewrites, rewrite{id, canonical})
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, r := range rewrites {
			query := fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ?`, t.table, t.tsCol, t.idCol)
			if _, err := tx.Exec(query, r.text, r.id); err != nil {
				return err
			}
		}
	}
	return nil
}
