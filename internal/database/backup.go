package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lessonbot/internal/config"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const defaultBackupInterval = 24 * time.Hour

// BackupService snapshots the booking database on a schedule. VACUUM INTO
// gives a consistent copy while the bot keeps writing; a plain file copy is
// the degraded path when the statement is unavailable.
type BackupService struct {
	dbPath string
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		dbPath: dbPath,
		config: cfg,
		logger: logger,
	}
}

// Start takes one snapshot right away, then repeats on the configured
// schedule until the context is cancelled. Expired snapshots are pruned
// after every run.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}
	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Backup service started")

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	s.runOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *BackupService) interval() time.Duration {
	if s.config.Schedule == "" {
		return defaultBackupInterval
	}
	d, err := time.ParseDuration(s.config.Schedule)
	if err != nil {
		s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("Failed to parse backup schedule, using default 24h")
		return defaultBackupInterval
	}
	return d
}

func (s *BackupService) runOnce() {
	if err := s.Snapshot(); err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
	}
	s.PruneOld()
}

// Snapshot writes one timestamped copy of the database into the storage
// directory.
func (s *BackupService) Snapshot() error {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	target := filepath.Join(s.config.StoragePath, fmt.Sprintf("lessons_%s.db", stamp))

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", target)); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		return s.copySnapshot(target)
	}

	s.logger.Info().Str("path", target).Msg("Backup completed")
	return nil
}

func (s *BackupService) copySnapshot(target string) error {
	source, err := os.Open(s.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(target)
	if err != nil {
		return err
	}
	defer destination.Close()

	// io.Copy is not atomic for SQLite; concurrent writes can corrupt the copy.
	if _, err := io.Copy(destination, source); err != nil {
		return err
	}

	s.logger.Info().Str("path", target).Msg("Fallback backup completed")
	return nil
}

// PruneOld deletes snapshots older than the retention window. Retention of
// zero or less keeps everything.
func (s *BackupService) PruneOld() {
	if s.config.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting expired backup")
			os.Remove(filepath.Join(s.config.StoragePath, file.Name()))
		}
	}
}
