//go:build integration

package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/broker"
	"github.com/keygate/keygate/internal/events"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/testutil"
)

type memoryRepo struct {
	mu       sync.Mutex
	byStream map[string]*model.KeyEvent
	failures int
}

func (r *memoryRepo) BulkInsert(ctx context.Context, batch []*model.KeyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("database unavailable")
	}
	for _, e := range batch {
		r.byStream[e.StreamID] = e
	}
	return nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byStream)
}

func setupBroker(t *testing.T) *redis.Client {
	t.Helper()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")
	ctx := context.Background()

	b, err := broker.New(ctx, redisURL, broker.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, testutil.FlushRedis(ctx, b.Client()))
	return b.Client()
}

func newEvent(appID string) *model.KeyEvent {
	return &model.KeyEvent{
		ID:         ulid.Make().String(),
		Type:       model.EventKeyIssued,
		AppID:      appID,
		Keys:       []string{testutil.UniqueToken()},
		Count:      1,
		OccurredAt: time.Now().UTC(),
	}
}

func TestPublisherAndWorker_EndToEnd(t *testing.T) {
	client := setupBroker(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := metrics.NewInMemory()

	pub := events.NewPublisher(client, logger, recorder)
	for i := 0; i < 5; i++ {
		pub.PublishAsync(newEvent("guild-1"))
	}
	require.NoError(t, pub.Shutdown(context.Background()))
	assert.EqualValues(t, 5, recorder.Snapshot().EventsPublished)

	// A poison entry must be dead-lettered, not block the group.
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: events.StreamKey,
		Values: map[string]interface{}{"payload": "{broken"},
	}).Err())

	repo := &memoryRepo{byStream: map[string]*model.KeyEvent{}, failures: 1}
	worker := events.NewWorker(client, repo, logger, events.NewConsumerID(), recorder, events.WorkerConfig{
		BlockTimeout: 100 * time.Millisecond,
		RetryBackoff: 10 * time.Millisecond,
	})

	go func() { _ = worker.Run(context.Background()) }()

	require.Eventually(t, func() bool { return repo.count() == 5 }, 10*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, worker.Shutdown(ctx))

	dlq, err := client.XLen(context.Background(), events.DeadLetterStreamKey).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, dlq)

	pending, err := client.XPending(context.Background(), events.StreamKey, events.ConsumerGroup).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending.Count)
}

func TestWorker_RunTwice(t *testing.T) {
	client := setupBroker(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := events.NewWorker(client, &memoryRepo{byStream: map[string]*model.KeyEvent{}}, logger, events.NewConsumerID(), nil, events.WorkerConfig{
		BlockTimeout: 50 * time.Millisecond,
	})

	go func() { _ = worker.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		return worker.Run(ctx) != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, worker.Shutdown(context.Background()))
}
