// Package events carries the key lifecycle audit trail from the command
// path to the key_events table through a Redis stream.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/keygate/keygate/internal/model"
)

var validate = validator.New()

// Payload is the compact wire form stored in the stream's "payload" field.
type Payload struct {
	ID         string   `json:"id" validate:"required,len=26"`
	Type       string   `json:"t" validate:"required,oneof=key.issued key.deleted key.expired_purged key.used access.changed"`
	AppID      string   `json:"a,omitempty" validate:"max=128"`
	Keys       []string `json:"k,omitempty" validate:"max=10000,dive,required,max=64"`
	Actor      string   `json:"ac,omitempty" validate:"max=128"`
	TargetID   string   `json:"tg,omitempty" validate:"max=128"`
	Count      int64    `json:"n" validate:"gte=0"`
	Enabled    *bool    `json:"e,omitempty"`
	OccurredAt int64    `json:"ts" validate:"gt=0"` // Unix milliseconds
}

// PayloadFromEvent converts a domain event to its wire form.
func PayloadFromEvent(e *model.KeyEvent) Payload {
	return Payload{
		ID:         e.ID,
		Type:       string(e.Type),
		AppID:      e.AppID,
		Keys:       e.Keys,
		Actor:      e.Actor,
		TargetID:   e.TargetID,
		Count:      e.Count,
		Enabled:    e.Enabled,
		OccurredAt: e.OccurredAt.UnixMilli(),
	}
}

// ToEvent rebuilds the domain event; streamID becomes its idempotency key.
func (p Payload) ToEvent(streamID string) *model.KeyEvent {
	return &model.KeyEvent{
		ID:         p.ID,
		StreamID:   streamID,
		Type:       model.KeyEventType(p.Type),
		AppID:      p.AppID,
		Keys:       p.Keys,
		Actor:      p.Actor,
		TargetID:   p.TargetID,
		Count:      p.Count,
		Enabled:    p.Enabled,
		OccurredAt: time.UnixMilli(p.OccurredAt).UTC(),
	}
}

// Validate checks the payload shape and the per-type required fields.
func (p Payload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	switch model.KeyEventType(p.Type) {
	case model.EventAccessChanged:
		if p.TargetID == "" || p.Enabled == nil {
			return fmt.Errorf("%s requires target and enabled", p.Type)
		}
	default:
		if p.AppID == "" && len(p.Keys) == 0 {
			return fmt.Errorf("%s requires an app or keys", p.Type)
		}
	}
	return nil
}

// DecodePayload parses and validates a stream entry's payload field.
func DecodePayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, fmt.Errorf("validate: %w", err)
	}
	return p, nil
}
