package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
	"github.com/redis/go-redis/v9"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 520520

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema rolls back and re-applies every migration.
func ResetSchema(ctx context.Context, databaseURL string) error {
	return repository.ResetSchema(ctx, databaseURL)
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq uint64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), atomic.AddUint64(&seq, 1))
}

// UniqueToken returns a well-formed license token that no other call in
// this process returns.
func UniqueToken() string {
	n := uint64(time.Now().UnixNano())<<8 ^ atomic.AddUint64(&seq, 1)
	return fmt.Sprintf("%016X", n)
}

// NewTestApp creates a test App with sensible defaults.
func NewTestApp(t testing.TB, appID string) *model.App {
	t.Helper()
	return &model.App{
		AppID:     appID,
		OwnerID:   "owner-" + appID,
		Name:      "Test App " + appID,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestKey creates an unused, non-expiring key for appID.
func NewTestKey(t testing.TB, appID string) *model.Key {
	t.Helper()
	return &model.Key{
		ID:        UniqueID("key"),
		Key:       UniqueToken(),
		AppID:     appID,
		Status:    model.KeyStatusUnused,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestKeyWithExpiry creates a key for appID expiring at expiresAt.
func NewTestKeyWithExpiry(t testing.TB, appID string, expiresAt time.Time) *model.Key {
	t.Helper()
	key := NewTestKey(t, appID)
	key.ExpiresAt = &expiresAt
	return key
}

// NewTestKeyWithStatus creates a non-expiring key for appID in status.
func NewTestKeyWithStatus(t testing.TB, appID string, status model.KeyStatus) *model.Key {
	t.Helper()
	key := NewTestKey(t, appID)
	key.Status = status
	return key
}
