package service

import (
	"context"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// UserStore persists requester entitlement records.
type UserStore interface {
	GetUserByDiscordID(ctx context.Context, discordID string) (*model.User, error)
	UpsertUserEnabled(ctx context.Context, discordID string, enabled bool) (*model.User, error)
}

// AppStore reads registered Apps.
type AppStore interface {
	GetAppByID(ctx context.Context, appID string) (*model.App, error)
}

// KeyStore persists license keys.
// Implementations must reject a duplicate token with repository.ErrKeyExists
// and must insert a CreateKeys batch atomically.
type KeyStore interface {
	CreateKey(ctx context.Context, key *model.Key) error
	CreateKeys(ctx context.Context, keys []*model.Key) error
	ExistingKeys(ctx context.Context, tokens []string) ([]string, error)
	GetKey(ctx context.Context, token string) (*model.Key, error)
	DeleteKey(ctx context.Context, token string) (int64, error)
	DeleteExpiredKeys(ctx context.Context, appID string, now time.Time) (int64, error)
	ListKeysByApp(ctx context.Context, appID string) ([]*model.Key, error)
	CountKeys(ctx context.Context, appID string, status model.KeyStatus) (int64, error)
	MarkKeyUsed(ctx context.Context, token string, userDiscordID *string) (*model.Key, error)
}

// EventPublisher receives lifecycle events. Publishing is best-effort and
// must never block the calling command.
type EventPublisher interface {
	PublishAsync(event *model.KeyEvent)
}

type noopPublisher struct{}

func (noopPublisher) PublishAsync(*model.KeyEvent) {}
