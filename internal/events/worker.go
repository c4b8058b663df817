package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
)

// ConsumerGroup is the Redis consumer group that persists the audit trail.
const ConsumerGroup = "key_event_writers"

// Repository persists decoded events. BulkInsert must be idempotent on
// the stream ID.
type Repository interface {
	BulkInsert(ctx context.Context, events []*model.KeyEvent) error
}

// WorkerConfig tunes the worker loop. Zero fields take defaults.
type WorkerConfig struct {
	BatchSize       int
	BlockTimeout    time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	ClaimInterval   time.Duration
	ClaimIdle       time.Duration
	MetricsInterval time.Duration
}

// DefaultWorkerConfig returns the production loop settings.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:       200,
		BlockTimeout:    5 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    time.Second,
		ClaimInterval:   10 * time.Second,
		ClaimIdle:       30 * time.Second,
		MetricsInterval: 5 * time.Second,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	d := DefaultWorkerConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = d.ClaimInterval
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = d.ClaimIdle
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = d.MetricsInterval
	}
	return c
}

// Worker drains the key event stream into the repository.
type Worker struct {
	redis      *redis.Client
	repo       Repository
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string
	cfg        WorkerConfig

	claimStart  string
	lastClaim   time.Time
	lastMetrics time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a worker reading as consumerID.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, consumerID string, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:      client,
		repo:       repo,
		logger:     logger.With("component", "events.worker", "consumer_id", consumerID),
		metrics:    recorder,
		consumerID: consumerID,
		cfg:        cfg.withDefaults(),
		claimStart: "0-0",
	}
}

// Run blocks until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("key event worker started")

	for {
		if ctx.Err() != nil {
			w.logger.Info("key event worker stopping")
			return nil
		}
		if err := w.processOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error("process error", "error", err)
			sleepCtx(ctx, time.Second)
		}
	}
}

// Shutdown stops the loop and waits for the in-flight batch. It matches
// server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("key event worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending entries", "error", err)
	}
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	events, ids := w.decodeMessages(ctx, messages)
	if len(events) > 0 {
		if err := w.persistWithRetry(ctx, events); err != nil {
			// Left unacknowledged; XAUTOCLAIM picks them up again.
			return err
		}
	}
	return w.ack(ctx, ids)
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.cfg.ClaimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.cfg.ClaimIdle,
		Start:    w.claimStart,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStart = next
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.cfg.MetricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
			w.logger.Warn("failed to read stream group info", "error", err)
		}
		return
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			w.metrics.SetEventQueueDepth(group.Pending + group.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// decodeMessages returns the valid events and every message ID, poison
// entries included: those are dead-lettered and acknowledged so they do
// not block the group.
func (w *Worker) decodeMessages(ctx context.Context, messages []redis.XMessage) ([]*model.KeyEvent, []string) {
	events := make([]*model.KeyEvent, 0, len(messages))
	ids := make([]string, 0, len(messages))

	for _, msg := range messages {
		ids = append(ids, msg.ID)

		raw, ok := msg.Values["payload"].(string)
		if !ok {
			w.deadLetter(ctx, msg, "invalid_format", "payload field missing or not a string")
			continue
		}
		payload, err := DecodePayload(raw)
		if err != nil {
			w.deadLetter(ctx, msg, "invalid_payload", err.Error())
			continue
		}
		events = append(events, payload.ToEvent(msg.ID))
	}
	return events, ids
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering poison entry",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          fmt.Sprint(msg.Values["payload"]),
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write to dead-letter stream", "message_id", msg.ID, "error", err)
	}
	w.metrics.IncEventProcessed("dead_lettered")
}

func (w *Worker) persistWithRetry(ctx context.Context, events []*model.KeyEvent) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		lastErr = w.persist(ctx, events)
		if lastErr == nil {
			return nil
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		backoff := w.cfg.RetryBackoff << (attempt - 1)
		w.logger.Warn("batch insert failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", lastErr,
		)
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
	}

	for range events {
		w.metrics.IncEventProcessed("failed")
	}
	w.logger.Error("batch insert failed after retries", "batch_size", len(events), "error", lastErr)
	return lastErr
}

func (w *Worker) persist(ctx context.Context, events []*model.KeyEvent) error {
	start := time.Now()
	if err := w.repo.BulkInsert(ctx, events); err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	elapsed := time.Since(start)
	w.logger.Debug("batch persisted", "events", len(events), "duration_ms", float64(elapsed.Microseconds())/1000)

	w.metrics.ObserveEventBatchSize(len(events))
	w.metrics.ObserveEventBatchDuration(elapsed)
	for _, e := range events {
		w.metrics.IncEventProcessed("success")
		w.metrics.ObserveEventIngestLag(time.Since(e.OccurredAt))
	}
	return nil
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
