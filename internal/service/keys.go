package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
	"github.com/oklog/ulid/v2"
)

const defaultRetryAttempts = 5

// TokenGenerator produces candidate license tokens.
type TokenGenerator func() (string, error)

// KeyManager handles the license key lifecycle.
type KeyManager struct {
	apps          AppStore
	keys          KeyStore
	events        EventPublisher
	metrics       metrics.Recorder
	logger        *slog.Logger
	now           func() time.Time
	generate      TokenGenerator
	retryAttempts int
}

// KeyManagerOption customizes a KeyManager.
type KeyManagerOption func(*KeyManager)

// WithClock overrides the time source used for createdAt and expiry.
func WithClock(now func() time.Time) KeyManagerOption {
	return func(m *KeyManager) { m.now = now }
}

// WithTokenGenerator overrides the token source.
func WithTokenGenerator(gen TokenGenerator) KeyManagerOption {
	return func(m *KeyManager) { m.generate = gen }
}

// WithRetryAttempts bounds how many times a colliding token is regenerated.
func WithRetryAttempts(n int) KeyManagerOption {
	return func(m *KeyManager) {
		if n > 0 {
			m.retryAttempts = n
		}
	}
}

// NewKeyManager creates a new KeyManager.
func NewKeyManager(apps AppStore, keys KeyStore, events EventPublisher, recorder metrics.Recorder, logger *slog.Logger, opts ...KeyManagerOption) *KeyManager {
	if events == nil {
		events = noopPublisher{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &KeyManager{
		apps:          apps,
		keys:          keys,
		events:        events,
		metrics:       recorder,
		logger:        logger.With("component", "key_manager"),
		now:           time.Now,
		generate:      auth.GenerateLicenseKey,
		retryAttempts: defaultRetryAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates one unused key for appID expiring after days whole days.
// Nil or zero days means the key never expires.
func (m *KeyManager) Issue(ctx context.Context, appID string, days *int) (*model.Key, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}
	if err := m.requireApp(ctx, appID); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	expiresAt := model.ExpiryFromDays(now, days)

	for attempt := 1; attempt <= m.retryAttempts; attempt++ {
		token, err := m.generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}

		key := newKey(token, appID, now, expiresAt)
		err = m.keys.CreateKey(ctx, key)
		if err == nil {
			m.metrics.IncKeysIssued(1)
			m.publishIssued(ctx, appID, []*model.Key{key}, now)
			return key, nil
		}
		if !errors.Is(err, repository.ErrKeyExists) {
			return nil, storeFailure("create key", err)
		}

		m.metrics.IncKeyCollision()
		m.logger.Debug("token collision, regenerating",
			"app_id", appID,
			"attempt", attempt,
		)
	}

	return nil, ErrConflict
}

// IssueBulk creates quantity unused keys for appID sharing one expiry.
// The batch is persisted atomically: either every key exists afterwards
// or none does.
func (m *KeyManager) IssueBulk(ctx context.Context, appID string, quantity int, days *int) ([]*model.Key, error) {
	if quantity < 1 {
		return nil, ErrInvalidInput
	}
	if err := validateDays(days); err != nil {
		return nil, err
	}
	if err := m.requireApp(ctx, appID); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	expiresAt := model.ExpiryFromDays(now, days)

	tokens, err := m.generateDistinct(quantity)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= m.retryAttempts; attempt++ {
		keys := make([]*model.Key, len(tokens))
		for i, token := range tokens {
			keys[i] = newKey(token, appID, now, expiresAt)
		}

		err := m.keys.CreateKeys(ctx, keys)
		if err == nil {
			m.metrics.IncKeysIssued(len(keys))
			m.publishIssued(ctx, appID, keys, now)
			return keys, nil
		}
		if !errors.Is(err, repository.ErrKeyExists) {
			return nil, storeFailure("create keys", err)
		}

		m.metrics.IncKeyCollision()
		m.logger.Debug("bulk token collision, regenerating",
			"app_id", appID,
			"quantity", quantity,
			"attempt", attempt,
		)

		existing, err := m.keys.ExistingKeys(ctx, tokens)
		if err != nil {
			return nil, storeFailure("find existing keys", err)
		}
		if len(existing) == 0 {
			// The colliding row vanished before we looked; start over.
			tokens, err = m.generateDistinct(quantity)
		} else {
			tokens, err = m.replaceTokens(tokens, existing)
		}
		if err != nil {
			return nil, err
		}
	}

	return nil, ErrConflict
}

// Check returns the key record for token without modifying it.
func (m *KeyManager) Check(ctx context.Context, token string) (*model.Key, error) {
	key, err := m.keys.GetKey(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, storeFailure("get key", err)
	}
	return key, nil
}

// DeleteOne removes the key identified by token.
func (m *KeyManager) DeleteOne(ctx context.Context, token string) (int64, error) {
	deleted, err := m.keys.DeleteKey(ctx, token)
	if err != nil {
		return 0, storeFailure("delete key", err)
	}
	if deleted == 0 {
		return 0, ErrKeyNotFound
	}

	m.metrics.IncKeysDeleted(deleted)
	m.logger.Info("key deleted", "key", token)

	event := newKeyEvent(ctx, model.EventKeyDeleted, m.now().UTC())
	event.Keys = []string{token}
	event.Count = deleted
	m.events.PublishAsync(event)

	return deleted, nil
}

// DeleteExpired removes every key of appID whose expiry has passed.
// Keys without an expiry are kept. Zero deletions is a success.
func (m *KeyManager) DeleteExpired(ctx context.Context, appID string) (int64, error) {
	now := m.now().UTC()

	deleted, err := m.keys.DeleteExpiredKeys(ctx, appID, now)
	if err != nil {
		return 0, storeFailure("delete expired keys", err)
	}

	if deleted > 0 {
		m.metrics.IncKeysDeleted(deleted)
		m.logger.Info("expired keys purged",
			"app_id", appID,
			"count", deleted,
		)

		event := newKeyEvent(ctx, model.EventKeyExpiredPurged, now)
		event.AppID = appID
		event.Count = deleted
		m.events.PublishAsync(event)
	}

	return deleted, nil
}

// ListAll returns every key of appID in store order.
func (m *KeyManager) ListAll(ctx context.Context, appID string) ([]*model.Key, error) {
	keys, err := m.keys.ListKeysByApp(ctx, appID)
	if err != nil {
		return nil, storeFailure("list keys", err)
	}
	return keys, nil
}

// Stats counts the keys of appID. Expired keys are part of the total
// but have no counter of their own.
func (m *KeyManager) Stats(ctx context.Context, appID string) (*model.KeyStats, error) {
	total, err := m.keys.CountKeys(ctx, appID, "")
	if err != nil {
		return nil, storeFailure("count keys", err)
	}
	unused, err := m.keys.CountKeys(ctx, appID, model.KeyStatusUnused)
	if err != nil {
		return nil, storeFailure("count unused keys", err)
	}
	used, err := m.keys.CountKeys(ctx, appID, model.KeyStatusUsed)
	if err != nil {
		return nil, storeFailure("count used keys", err)
	}

	return &model.KeyStats{
		TotalKeys:  total,
		UnusedKeys: unused,
		UsedKeys:   used,
	}, nil
}

// MarkUsed moves an unused key to used and binds userID when non-empty.
func (m *KeyManager) MarkUsed(ctx context.Context, token, userID string) (*model.Key, error) {
	var bind *string
	if userID != "" {
		bind = &userID
	}

	key, err := m.keys.MarkKeyUsed(ctx, token, bind)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrKeyNotFound):
			return nil, ErrKeyNotFound
		case errors.Is(err, repository.ErrKeyNotUnused):
			return nil, ErrInvalidTransition
		default:
			return nil, storeFailure("mark key used", err)
		}
	}

	m.metrics.IncKeyUsed()

	event := newKeyEvent(ctx, model.EventKeyUsed, m.now().UTC())
	event.AppID = key.AppID
	event.Keys = []string{key.Key}
	event.TargetID = userID
	event.Count = 1
	m.events.PublishAsync(event)

	return key, nil
}

func (m *KeyManager) requireApp(ctx context.Context, appID string) error {
	if appID == "" {
		return ErrInvalidInput
	}
	if _, err := m.apps.GetAppByID(ctx, appID); err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return ErrAppNotFound
		}
		return storeFailure("get app", err)
	}
	return nil
}

// generateDistinct draws n tokens with no duplicates inside the batch.
func (m *KeyManager) generateDistinct(n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	tokens := make([]string, 0, n)
	budget := n * (m.retryAttempts + 1)

	for len(tokens) < n {
		if budget == 0 {
			return nil, ErrConflict
		}
		budget--

		token, err := m.generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}

	return tokens, nil
}

// replaceTokens swaps every token listed in taken for a fresh one that is
// not already part of the batch.
func (m *KeyManager) replaceTokens(tokens, taken []string) ([]string, error) {
	takenSet := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		takenSet[t] = struct{}{}
	}

	inBatch := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		inBatch[t] = struct{}{}
	}

	out := make([]string, len(tokens))
	budget := len(taken) * (m.retryAttempts + 1)
	for i, token := range tokens {
		if _, clash := takenSet[token]; !clash {
			out[i] = token
			continue
		}
		for {
			if budget == 0 {
				return nil, ErrConflict
			}
			budget--

			fresh, err := m.generate()
			if err != nil {
				return nil, fmt.Errorf("failed to generate key: %w", err)
			}
			_, dup := inBatch[fresh]
			_, stale := takenSet[fresh]
			if dup || stale {
				continue
			}
			inBatch[fresh] = struct{}{}
			out[i] = fresh
			break
		}
	}

	return out, nil
}

func (m *KeyManager) publishIssued(ctx context.Context, appID string, keys []*model.Key, now time.Time) {
	m.logger.Info("keys issued",
		"app_id", appID,
		"count", len(keys),
	)

	event := newKeyEvent(ctx, model.EventKeyIssued, now)
	event.AppID = appID
	event.Keys = tokensOf(keys)
	event.Count = int64(len(keys))
	m.events.PublishAsync(event)
}

func newKey(token, appID string, now time.Time, expiresAt *time.Time) *model.Key {
	return &model.Key{
		ID:        ulid.Make().String(),
		Key:       token,
		AppID:     appID,
		Status:    model.KeyStatusUnused,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
}

func validateDays(days *int) error {
	if days != nil && (*days < 0 || *days > model.MaxLifetimeDays) {
		return ErrInvalidInput
	}
	return nil
}
