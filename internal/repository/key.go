package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/keygate/keygate/internal/model"
	"github.com/lib/pq"
)

// Common errors for key repository operations.
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrKeyExists    = errors.New("key already exists")
	ErrKeyNotUnused = errors.New("key is not unused")
)

const keyUniqueConstraint = "keys_key_unique"

const keyColumns = `id, key, app_id, status, created_at, expires_at, user_discord_id`

// CreateKey inserts a single key.
// A token collision returns ErrKeyExists and leaves the existing row untouched.
func (r *Repository) CreateKey(ctx context.Context, key *model.Key) error {
	query := `
		INSERT INTO keys (id, key, app_id, status, created_at, expires_at, user_discord_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.Key,
		key.AppID,
		key.Status,
		key.CreatedAt,
		key.ExpiresAt,
		key.UserDiscordID,
	)

	if err != nil {
		if isUniqueViolationOn(err, keyUniqueConstraint) {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to create key: %w", err)
	}

	return nil
}

// CreateKeys inserts every key in one transaction.
// Either all keys are persisted or none are.
func (r *Repository) CreateKeys(ctx context.Context, keys []*model.Key) error {
	if len(keys) == 0 {
		return nil
	}

	query := `
		INSERT INTO keys (id, key, app_id, status, created_at, expires_at, user_discord_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, key := range keys {
			batch.Queue(query,
				key.ID,
				key.Key,
				key.AppID,
				key.Status,
				key.CreatedAt,
				key.ExpiresAt,
				key.UserDiscordID,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < len(keys); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("batch insert key %d: %w", i, err)
			}
		}
		return results.Close()
	})

	if err != nil {
		if isUniqueViolationOn(err, keyUniqueConstraint) {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to create keys: %w", err)
	}

	return nil
}

// ExistingKeys returns the subset of tokens already present in the store.
func (r *Repository) ExistingKeys(ctx context.Context, tokens []string) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	query := `SELECT key FROM keys WHERE key = ANY($1)`

	rows, err := r.pool.Query(ctx, query, pq.Array(tokens))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing keys: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		existing = append(existing, token)
	}

	return existing, rows.Err()
}

// GetKey retrieves a key by its token.
func (r *Repository) GetKey(ctx context.Context, token string) (*model.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE key = $1`

	key, err := scanKey(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	return key, nil
}

// DeleteKey removes a key by token and returns the number of rows removed.
func (r *Repository) DeleteKey(ctx context.Context, token string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM keys WHERE key = $1`, token)
	if err != nil {
		return 0, fmt.Errorf("failed to delete key: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredKeys removes every key of appID whose expiry lies strictly
// before now. Keys without an expiry are never removed.
func (r *Repository) DeleteExpiredKeys(ctx context.Context, appID string, now time.Time) (int64, error) {
	query := `
		DELETE FROM keys
		WHERE app_id = $1
		  AND expires_at IS NOT NULL
		  AND expires_at < $2
	`

	tag, err := r.pool.Exec(ctx, query, appID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListKeysByApp returns every key of appID in store order.
func (r *Repository) ListKeysByApp(ctx context.Context, appID string) ([]*model.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE app_id = $1`

	rows, err := r.pool.Query(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*model.Key, 0)
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}

	return keys, nil
}

// CountKeys counts the keys of appID. An empty status counts all of them.
func (r *Repository) CountKeys(ctx context.Context, appID string, status model.KeyStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM keys WHERE app_id = $1`
	args := []any{appID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return count, nil
}

// MarkKeyUsed moves a key from unused to used, optionally binding the user.
// Returns ErrKeyNotFound if the token is absent and ErrKeyNotUnused if the
// key has already left the unused state.
func (r *Repository) MarkKeyUsed(ctx context.Context, token string, userDiscordID *string) (*model.Key, error) {
	query := `
		UPDATE keys
		SET status = 'used',
		    user_discord_id = COALESCE($2, user_discord_id)
		WHERE key = $1 AND status = 'unused'
		RETURNING ` + keyColumns

	key, err := scanKey(r.pool.QueryRow(ctx, query, token, userDiscordID))
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to mark key used: %w", err)
	}

	// Nothing updated: distinguish a missing key from a wrong state.
	if _, err := r.GetKey(ctx, token); err != nil {
		return nil, err
	}
	return nil, ErrKeyNotUnused
}

// scanKey scans a single row into a Key model.
func scanKey(row pgx.Row) (*model.Key, error) {
	var key model.Key
	err := row.Scan(
		&key.ID,
		&key.Key,
		&key.AppID,
		&key.Status,
		&key.CreatedAt,
		&key.ExpiresAt,
		&key.UserDiscordID,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}
