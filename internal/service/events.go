package service

import (
	"context"
	"time"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/model"
	"github.com/oklog/ulid/v2"
)

// newKeyEvent stamps an event with a fresh ID and the caller from ctx.
func newKeyEvent(ctx context.Context, eventType model.KeyEventType, now time.Time) *model.KeyEvent {
	return &model.KeyEvent{
		ID:         ulid.Make().String(),
		Type:       eventType,
		Actor:      actorOf(ctx),
		OccurredAt: now,
	}
}

// actorOf names the caller. Requests that presented the operator key are
// tagged so the audit trail separates them from plain requester ids.
func actorOf(ctx context.Context) string {
	requester := auth.RequesterFromContext(ctx)
	if !auth.IsOperator(ctx) {
		return requester
	}
	if requester == "" {
		return "operator"
	}
	return "operator:" + requester
}

func tokensOf(keys []*model.Key) []string {
	tokens := make([]string, len(keys))
	for i, k := range keys {
		tokens[i] = k.Key
	}
	return tokens
}
