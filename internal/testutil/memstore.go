package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// MemoryStore is an in-memory stand-in for the Postgres repository.
// It honors the same sentinel errors and uniqueness rules.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	apps    map[string]*model.App
	keys    []*model.Key
	byToken map[string]*model.Key
	failErr error
	calls   int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*model.User),
		apps:    make(map[string]*model.App),
		byToken: make(map[string]*model.Key),
	}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Calls returns how many store methods have been invoked.
func (s *MemoryStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// AddApp registers an App.
func (s *MemoryStore) AddApp(app *model.App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.apps[app.AppID] = &cp
}

// AddKey seeds a key directly without any uniqueness check.
func (s *MemoryStore) AddKey(key *model.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.keys = append(s.keys, &cp)
	s.byToken[key.Key] = &cp
}

// SetUser creates or replaces a User record.
func (s *MemoryStore) SetUser(discordID string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.users[discordID] = &model.User{
		DiscordID:    discordID,
		IsBotEnabled: enabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// UserCount returns the number of User records.
func (s *MemoryStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// AllKeys returns copies of every stored key in insertion order.
func (s *MemoryStore) AllKeys() []*model.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Key, len(s.keys))
	for i, k := range s.keys {
		cp := *k
		out[i] = &cp
	}
	return out
}

func (s *MemoryStore) begin() error {
	s.calls++
	return s.failErr
}

// GetUserByDiscordID implements service.UserStore.
func (s *MemoryStore) GetUserByDiscordID(_ context.Context, discordID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	user, ok := s.users[discordID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// UpsertUserEnabled implements service.UserStore.
func (s *MemoryStore) UpsertUserEnabled(_ context.Context, discordID string, enabled bool) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user, ok := s.users[discordID]
	if !ok {
		user = &model.User{DiscordID: discordID, CreatedAt: now}
		s.users[discordID] = user
	}
	user.IsBotEnabled = enabled
	user.UpdatedAt = now
	cp := *user
	return &cp, nil
}

// GetAppByID implements service.AppStore.
func (s *MemoryStore) GetAppByID(_ context.Context, appID string) (*model.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	app, ok := s.apps[appID]
	if !ok {
		return nil, repository.ErrAppNotFound
	}
	cp := *app
	return &cp, nil
}

// CreateKey implements service.KeyStore.
func (s *MemoryStore) CreateKey(_ context.Context, key *model.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	if _, exists := s.byToken[key.Key]; exists {
		return repository.ErrKeyExists
	}
	cp := *key
	s.keys = append(s.keys, &cp)
	s.byToken[key.Key] = &cp
	return nil
}

// CreateKeys implements service.KeyStore. A single duplicate rejects the
// whole batch.
func (s *MemoryStore) CreateKeys(_ context.Context, keys []*model.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	batch := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, exists := s.byToken[key.Key]; exists {
			return repository.ErrKeyExists
		}
		if _, dup := batch[key.Key]; dup {
			return repository.ErrKeyExists
		}
		batch[key.Key] = struct{}{}
	}
	for _, key := range keys {
		cp := *key
		s.keys = append(s.keys, &cp)
		s.byToken[key.Key] = &cp
	}
	return nil
}

// ExistingKeys implements service.KeyStore.
func (s *MemoryStore) ExistingKeys(_ context.Context, tokens []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	var existing []string
	for _, token := range tokens {
		if _, ok := s.byToken[token]; ok {
			existing = append(existing, token)
		}
	}
	return existing, nil
}

// GetKey implements service.KeyStore.
func (s *MemoryStore) GetKey(_ context.Context, token string) (*model.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	key, ok := s.byToken[token]
	if !ok {
		return nil, repository.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

// DeleteKey implements service.KeyStore.
func (s *MemoryStore) DeleteKey(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return 0, err
	}
	if _, ok := s.byToken[token]; !ok {
		return 0, nil
	}
	s.removeWhere(func(k *model.Key) bool { return k.Key == token })
	return 1, nil
}

// DeleteExpiredKeys implements service.KeyStore.
func (s *MemoryStore) DeleteExpiredKeys(_ context.Context, appID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return 0, err
	}
	return s.removeWhere(func(k *model.Key) bool {
		return k.AppID == appID && k.IsExpiredAt(now)
	}), nil
}

// ListKeysByApp implements service.KeyStore.
func (s *MemoryStore) ListKeysByApp(_ context.Context, appID string) ([]*model.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	keys := make([]*model.Key, 0)
	for _, k := range s.keys {
		if k.AppID == appID {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	return keys, nil
}

// CountKeys implements service.KeyStore.
func (s *MemoryStore) CountKeys(_ context.Context, appID string, status model.KeyStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return 0, err
	}
	var n int64
	for _, k := range s.keys {
		if k.AppID == appID && (status == "" || k.Status == status) {
			n++
		}
	}
	return n, nil
}

// MarkKeyUsed implements service.KeyStore.
func (s *MemoryStore) MarkKeyUsed(_ context.Context, token string, userDiscordID *string) (*model.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	key, ok := s.byToken[token]
	if !ok {
		return nil, repository.ErrKeyNotFound
	}
	if key.Status != model.KeyStatusUnused {
		return nil, repository.ErrKeyNotUnused
	}
	key.Status = model.KeyStatusUsed
	if userDiscordID != nil {
		id := *userDiscordID
		key.UserDiscordID = &id
	}
	cp := *key
	return &cp, nil
}

// removeWhere deletes matching keys and returns how many were removed.
// Callers must hold s.mu.
func (s *MemoryStore) removeWhere(match func(*model.Key) bool) int64 {
	kept := s.keys[:0]
	var removed int64
	for _, k := range s.keys {
		if match(k) {
			delete(s.byToken, k.Key)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	s.keys = kept
	return removed
}
