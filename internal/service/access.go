package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// AccessGate decides whether a requester may invoke gated commands.
type AccessGate struct {
	users   UserStore
	events  EventPublisher
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewAccessGate creates a new AccessGate.
func NewAccessGate(users UserStore, events EventPublisher, recorder metrics.Recorder, logger *slog.Logger) *AccessGate {
	if events == nil {
		events = noopPublisher{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessGate{
		users:   users,
		events:  events,
		metrics: recorder,
		logger:  logger.With("component", "access_gate"),
		now:     time.Now,
	}
}

// Resolve returns the entitlement of requesterID.
// An empty id or a missing record is EntitlementUnknown, not an error.
func (g *AccessGate) Resolve(ctx context.Context, requesterID string) (model.Entitlement, error) {
	if requesterID == "" {
		return model.EntitlementUnknown, nil
	}

	user, err := g.users.GetUserByDiscordID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.EntitlementUnknown, nil
		}
		return model.EntitlementUnknown, storeFailure("resolve entitlement", err)
	}

	return model.EntitlementOf(user), nil
}

// IsAuthorized collapses Resolve to a yes/no answer. Only an enabled record
// grants access; on error the answer is always false.
func (g *AccessGate) IsAuthorized(ctx context.Context, requesterID string) (bool, error) {
	entitlement, err := g.Resolve(ctx, requesterID)
	if err != nil {
		return false, err
	}
	if !entitlement.Allowed() {
		g.metrics.IncAccessDenied()
		g.logger.Warn("access denied",
			"requester_id", requesterID,
			"entitlement", entitlement.String(),
		)
		return false, nil
	}
	return true, nil
}

// SetEnabled creates or updates the record for targetID. Repeating the call
// converges on one record with the requested flag.
func (g *AccessGate) SetEnabled(ctx context.Context, targetID string, enabled bool) (*model.User, error) {
	if targetID == "" {
		return nil, ErrInvalidInput
	}

	user, err := g.users.UpsertUserEnabled(ctx, targetID, enabled)
	if err != nil {
		return nil, storeFailure("set enabled", err)
	}

	g.logger.Info("entitlement changed",
		"target_id", targetID,
		"enabled", enabled,
	)

	event := newKeyEvent(ctx, model.EventAccessChanged, g.now().UTC())
	event.TargetID = targetID
	event.Enabled = &enabled
	g.events.PublishAsync(event)

	return user, nil
}
