package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
)

const (
	// StreamKey is the Redis stream for key lifecycle events.
	StreamKey = "stream:key_events"

	// DeadLetterStreamKey receives entries the worker cannot decode.
	DeadLetterStreamKey = "stream:key_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 250 * time.Millisecond
)

// Publisher enqueues key events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder

	inflight sync.WaitGroup
}

// NewPublisher creates a new key event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously and returns its
// stream ID.
func (p *Publisher) Publish(ctx context.Context, event *model.KeyEvent) (string, error) {
	data, err := json.Marshal(PayloadFromEvent(event))
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishAsync publishes without blocking the command path. Failures are
// logged and counted as dropped.
func (p *Publisher) PublishAsync(event *model.KeyEvent) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish key event",
				"event_type", event.Type,
				"event_id", event.ID,
				"error", err,
			)
			p.metrics.IncEventPublished("dropped")
			return
		}

		p.logger.Debug("key event published",
			"event_type", event.Type,
			"stream_id", streamID,
		)
		p.metrics.IncEventPublished("success")
	}()
}

// Shutdown waits for in-flight publishes. It is registered with the
// server so the broker is not closed under them.
func (p *Publisher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight publishes: %w", ctx.Err())
	}
}
