package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/keygate/keygate/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

// GetUserByDiscordID retrieves a user by their caller identity.
func (r *Repository) GetUserByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	query := `
		SELECT discord_id, is_bot_enabled, created_at, updated_at
		FROM users
		WHERE discord_id = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, discordID).Scan(
		&user.DiscordID,
		&user.IsBotEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by discord ID: %w", err)
	}

	return &user, nil
}

// UpsertUserEnabled creates the user if absent and sets its enabled flag.
// Concurrent calls for the same id converge on a single row.
func (r *Repository) UpsertUserEnabled(ctx context.Context, discordID string, enabled bool) (*model.User, error) {
	query := `
		INSERT INTO users (discord_id, is_bot_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (discord_id) DO UPDATE
		SET is_bot_enabled = EXCLUDED.is_bot_enabled,
		    updated_at = EXCLUDED.updated_at
		RETURNING discord_id, is_bot_enabled, created_at, updated_at
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, discordID, enabled, time.Now().UTC()).Scan(
		&user.DiscordID,
		&user.IsBotEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return &user, nil
}
