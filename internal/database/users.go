package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lessonbot/internal/models"
	"lessonbot/internal/timeparse"
)

// CreateUser upserts a user. Profile fields refresh on every contact but the
// chosen language is preserved.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, language, first_name, username, created_at)
	          VALUES (?, ?, ?, ?, ?)
	          ON CONFLICT(id) DO UPDATE SET
	              first_name = excluded.first_name,
	              username = excluded.username`
	lang := user.Language
	if lang == "" {
		lang = "en"
	}
	if _, err := db.ExecContext(ctx, query, user.ID, lang, user.FirstName, user.Username, nowText()); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (db *DB) SetUserLanguage(ctx context.Context, userID int64, language string) error {
	if _, err := db.ExecContext(ctx, `UPDATE users SET language = ? WHERE id = ?`, language, userID); err != nil {
		return fmt.Errorf("failed to set user language: %w", err)
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT id, language, first_name, username, created_at FROM users WHERE id = ?`
	user := &models.User{}
	var firstName, username sql.NullString
	var createdAt string
	err := db.QueryRowContext(ctx, query, userID).Scan(&user.ID, &user.Language, &firstName, &username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.FirstName = firstName.String
	user.Username = username.String
	if created, err := timeparse.ParseInstant(createdAt); err == nil {
		user.CreatedAt = created
	}
	return user, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, language, first_name, username, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		var firstName, username sql.NullString
		var createdAt string
		if err := rows.Scan(&user.ID, &user.Language, &firstName, &username, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.FirstName = firstName.String
		user.Username = username.String
		if created, err := timeparse.ParseInstant(createdAt); err == nil {
			user.CreatedAt = created
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
