package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lessonbot/internal/timeparse"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrSlotTaken is returned to the racer that lost the check-then-insert.
	ErrSlotTaken = errors.New("slot is already taken")

	// ErrQuotaExceeded is returned when the weekly booking limit is reached.
	ErrQuotaExceeded = errors.New("weekly booking quota exceeded")

	// ErrDateClosed is returned when an operator closed the requested date.
	ErrDateClosed = errors.New("date is closed for booking")

	// ErrPastSlot is returned when the requested instant already passed.
	ErrPastSlot = errors.New("slot is in the past")

	// ErrNotFound is returned for stale references.
	ErrNotFound = errors.New("not found")
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer: the slot check-then-insert relies on transactions never
	// interleaving at the connection level.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY,
            language TEXT NOT NULL DEFAULT 'en',
            first_name TEXT,
            username TEXT,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            date TEXT NOT NULL,
            time TEXT NOT NULL,
            start_ts TEXT NOT NULL,
            branch TEXT,
            purpose TEXT,
            status TEXT NOT NULL DEFAULT 'active',
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS reminders (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            role TEXT NOT NULL,
            lead_tag TEXT NOT NULL,
            scheduled_ts TEXT NOT NULL,
            sent INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS closed_dates (
            date TEXT PRIMARY KEY,
            reason TEXT,
            created_at TEXT NOT NULL
        )`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// nowText is the canonical created_at representation.
func nowText() string {
	return timeparse.FormatInstant(time.Now())
}
