//go:build integration

package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
	"github.com/keygate/keygate/internal/testutil"
)

func newTestRepo(t *testing.T) (context.Context, *repository.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := repository.New(ctx, dbURL, repository.DefaultOptions())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetSchema(ctx, dbURL); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return ctx, repo
}

func seedApp(t *testing.T, ctx context.Context, repo *repository.Repository) string {
	t.Helper()
	app := testutil.NewTestApp(t, testutil.UniqueID("app"))
	if err := repo.CreateApp(ctx, app); err != nil {
		t.Fatalf("CreateApp failed: %v", err)
	}
	return app.AppID
}

// ============================================================================
// Users
// ============================================================================

func TestIntegrationUser_UpsertAndGet(t *testing.T) {
	ctx, repo := newTestRepo(t)
	id := testutil.UniqueID("discord")

	if _, err := repo.GetUserByDiscordID(ctx, id); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("GetUserByDiscordID on missing user = %v, want ErrUserNotFound", err)
	}

	created, err := repo.UpsertUserEnabled(ctx, id, false)
	if err != nil {
		t.Fatalf("UpsertUserEnabled failed: %v", err)
	}
	if created.IsBotEnabled {
		t.Error("new user should be disabled")
	}

	updated, err := repo.UpsertUserEnabled(ctx, id, true)
	if err != nil {
		t.Fatalf("UpsertUserEnabled failed: %v", err)
	}
	if !updated.IsBotEnabled {
		t.Error("user should now be enabled")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("upsert must not reset created_at")
	}

	got, err := repo.GetUserByDiscordID(ctx, id)
	if err != nil {
		t.Fatalf("GetUserByDiscordID failed: %v", err)
	}
	if !got.IsBotEnabled {
		t.Error("stored user should be enabled")
	}
}

// ============================================================================
// Apps
// ============================================================================

func TestIntegrationApp_CreateAndGet(t *testing.T) {
	ctx, repo := newTestRepo(t)
	app := testutil.NewTestApp(t, testutil.UniqueID("app"))

	if err := repo.CreateApp(ctx, app); err != nil {
		t.Fatalf("CreateApp failed: %v", err)
	}
	if err := repo.CreateApp(ctx, app); !errors.Is(err, repository.ErrAppExists) {
		t.Fatalf("duplicate CreateApp = %v, want ErrAppExists", err)
	}

	got, err := repo.GetAppByID(ctx, app.AppID)
	if err != nil {
		t.Fatalf("GetAppByID failed: %v", err)
	}
	if got.OwnerID != app.OwnerID || got.Name != app.Name {
		t.Errorf("app mismatch: got %+v", got)
	}

	if _, err := repo.GetAppByID(ctx, "missing"); !errors.Is(err, repository.ErrAppNotFound) {
		t.Errorf("GetAppByID on missing app = %v, want ErrAppNotFound", err)
	}
}

// ============================================================================
// Keys
// ============================================================================

func TestIntegrationKey_CreateDuplicateToken(t *testing.T) {
	ctx, repo := newTestRepo(t)
	appID := seedApp(t, ctx, repo)

	key := testutil.NewTestKey(t, appID)
	if err := repo.CreateKey(ctx, key); err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}

	dup := testutil.NewTestKey(t, appID)
	dup.Key = key.Key
	if err := repo.CreateKey(ctx, dup); !errors.Is(err, repository.ErrKeyExists) {
		t.Fatalf("duplicate token = %v, want ErrKeyExists", err)
	}
}

func TestIntegrationKey_CreateKeysAtomic(t *testing.T) {
	ctx, repo := newTestRepo(t)
	appID := seedApp(t, ctx, repo)

	existing := testutil.NewTestKey(t, appID)
	if err := repo.CreateKey(ctx, existing); err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}

	batch := []*model.Key{testutil.NewTestKey(t, appID), testutil.NewTestKey(t, appID), testutil.NewTestKey(t, appID)}
	batch[2].Key = existing.Key

	if err := repo.CreateKeys(ctx, batch); !errors.Is(err, repository.ErrKeyExists) {
		t.Fatalf("CreateKeys with collision = %v, want ErrKeyExists", err)
	}
	total, err := repo.CountKeys(ctx, appID, "")
	if err != nil {
		t.Fatalf("CountKeys failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("a failed batch must persist nothing, found %d keys", total)
	}

	batch[2] = testutil.NewTestKey(t, appID)
	if err := repo.CreateKeys(ctx, batch); err != nil {
		t.Fatalf("CreateKeys failed: %v", err)
	}
	total, _ = repo.CountKeys(ctx, appID, "")
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}

	found, err := repo.ExistingKeys(ctx, []string{batch[0].Key, "NOTATOKEN0000000", existing.Key})
	if err != nil {
		t.Fatalf("ExistingKeys failed: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("ExistingKeys = %v, want 2 hits", found)
	}
}

func TestIntegrationKey_GetAndDelete(t *testing.T) {
	ctx, repo := newTestRepo(t)
	appID := seedApp(t, ctx, repo)

	key := testutil.NewTestKeyWithExpiry(t, appID, time.Now().Add(48*time.Hour).UTC().Truncate(time.Microsecond))
	if err := repo.CreateKey(ctx, key); err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}

	got, err := repo.GetKey(ctx, key.Key)
	if err != nil {
		t.Fatalf("GetKey failed: %v", err)
	}
	if got.Status != model.KeyStatusUnused || got.ExpiresAt == nil || !got.ExpiresAt.Equal(*key.ExpiresAt) {
		t.Errorf("key mismatch: %+v", got)
	}

	deleted, err := repo.DeleteKey(ctx, key.Key)
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteKey = %d, %v; want 1, nil", deleted, err)
	}
	deleted, err = repo.DeleteKey(ctx, key.Key)
	if err != nil || deleted != 0 {
		t.Fatalf("second DeleteKey = %d, %v; want 0, nil", deleted, err)
	}
	if _, err := repo.GetKey(ctx, key.Key); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Errorf("GetKey after delete = %v, want ErrKeyNotFound", err)
	}
}

func TestIntegrationKey_DeleteExpiredScopedToApp(t *testing.T) {
	ctx, repo := newTestRepo(t)
	appA := seedApp(t, ctx, repo)
	appB := seedApp(t, ctx, repo)
	now := time.Now().UTC()

	keys := []*model.Key{
		testutil.NewTestKeyWithExpiry(t, appA, now.Add(-time.Hour)),
		testutil.NewTestKeyWithExpiry(t, appA, now.Add(-48*time.Hour)),
		testutil.NewTestKeyWithExpiry(t, appA, now.Add(time.Hour)),
		testutil.NewTestKey(t, appA),
		testutil.NewTestKeyWithExpiry(t, appB, now.Add(-time.Hour)),
	}
	if err := repo.CreateKeys(ctx, keys); err != nil {
		t.Fatalf("CreateKeys failed: %v", err)
	}

	deleted, err := repo.DeleteExpiredKeys(ctx, appA, now)
	if err != nil {
		t.Fatalf("DeleteExpiredKeys failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	remainingA, _ := repo.ListKeysByApp(ctx, appA)
	if len(remainingA) != 2 {
		t.Errorf("app A keeps %d keys, want 2", len(remainingA))
	}
	remainingB, _ := repo.ListKeysByApp(ctx, appB)
	if len(remainingB) != 1 {
		t.Errorf("app B keeps %d keys, want 1", len(remainingB))
	}
}

func TestIntegrationKey_ListAndCount(t *testing.T) {
	ctx, repo := newTestRepo(t)
	appID := seedApp(t, ctx, repo)

	empty, err := repo.ListKeysByApp(ctx, appID)
	if err != nil {
		t.Fatalf("ListKeysByApp failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("empty app should list an empty, non-nil slice, got %v", empty)
	}

	keys := []*model.Key{
		testutil.NewTestKey(t, appID),
		testutil.NewTestKey(t, appID),
		testutil.NewTestKeyWithStatus(t, appID, model.KeyStatusUsed),
		testutil.NewTestKeyWithStatus(t, appID, model.KeyStatusExpired),
	}
	if err := repo.CreateKeys(ctx, keys); err != nil {
		t.Fatalf("CreateKeys failed: %v", err)
	}

	for status, want := range map[model.KeyStatus]int64{
		"":                     4,
		model.KeyStatusUnused:  2,
		model.KeyStatusUsed:    1,
		model.KeyStatusExpired: 1,
	} {
		got, err := repo.CountKeys(ctx, appID, status)
		if err != nil {
			t.Fatalf("CountKeys(%q) failed: %v", status, err)
		}
		if got != want {
			t.Errorf("CountKeys(%q) = %d, want %d", status, got, want)
		}
	}

	listed, _ := repo.ListKeysByApp(ctx, appID)
	if len(listed) != 4 {
		t.Errorf("ListKeysByApp = %d keys, want 4", len(listed))
	}
}

func TestIntegrationKey_MarkUsed(t *testing.T) {
	ctx, repo := newTestRepo(t)
	appID := seedApp(t, ctx, repo)

	key := testutil.NewTestKey(t, appID)
	if err := repo.CreateKey(ctx, key); err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}

	user := "734118620094234634"
	used, err := repo.MarkKeyUsed(ctx, key.Key, &user)
	if err != nil {
		t.Fatalf("MarkKeyUsed failed: %v", err)
	}
	if used.Status != model.KeyStatusUsed || used.UserDiscordID == nil || *used.UserDiscordID != user {
		t.Errorf("used key mismatch: %+v", used)
	}

	if _, err := repo.MarkKeyUsed(ctx, key.Key, nil); !errors.Is(err, repository.ErrKeyNotUnused) {
		t.Errorf("second MarkKeyUsed = %v, want ErrKeyNotUnused", err)
	}
	if _, err := repo.MarkKeyUsed(ctx, "NOTATOKEN0000000", nil); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Errorf("MarkKeyUsed on missing token = %v, want ErrKeyNotFound", err)
	}
}

func TestIntegrationKey_StatusCheckConstraint(t *testing.T) {
	ctx, repo := newTestRepo(t)
	appID := seedApp(t, ctx, repo)

	key := testutil.NewTestKeyWithStatus(t, appID, model.KeyStatus("revoked"))
	if err := repo.CreateKey(ctx, key); err == nil {
		t.Fatal("CreateKey with unknown status should fail the CHECK constraint")
	}
}

// ============================================================================
// Key events
// ============================================================================

func TestIntegrationKeyEvent_BulkInsertIdempotent(t *testing.T) {
	ctx, repo := newTestRepo(t)
	events := repository.NewKeyEventRepository(repo)
	enabled := false

	batch := []*model.KeyEvent{
		{
			ID:         ulid.Make().String(),
			StreamID:   "1700000000000-0",
			Type:       model.EventKeyIssued,
			AppID:      "guild-1",
			Keys:       []string{"ABCDEF0123456789"},
			Actor:      "requester-1",
			Count:      1,
			OccurredAt: time.Now().UTC().Add(-time.Minute),
		},
		{
			ID:         ulid.Make().String(),
			StreamID:   "1700000000000-1",
			Type:       model.EventAccessChanged,
			TargetID:   "requester-2",
			Enabled:    &enabled,
			OccurredAt: time.Now().UTC(),
		},
	}

	if err := events.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}
	// Replaying the same stream entries must not duplicate rows.
	if err := events.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("replayed BulkInsert failed: %v", err)
	}

	listed, err := events.ListByApp(ctx, "guild-1", 10)
	if err != nil {
		t.Fatalf("ListByApp failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("ListByApp = %d events, want 1", len(listed))
	}
	if listed[0].Type != model.EventKeyIssued || len(listed[0].Keys) != 1 || listed[0].Actor != "requester-1" {
		t.Errorf("event mismatch: %+v", listed[0])
	}
}

// ============================================================================
// Migrations
// ============================================================================

func TestIntegrationMigration_Tables(t *testing.T) {
	ctx, repo := newTestRepo(t)

	for _, table := range []string{"users", "apps", "keys", "key_events"} {
		var exists bool
		err := repo.Pool().QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
			table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("query table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %q should exist after migrations", table)
		}
	}

	if err := repository.Migrate(ctx, testutil.RequireEnv(t, "DATABASE_URL")); err != nil {
		t.Errorf("re-running migrations should be a no-op, got %v", err)
	}
}
