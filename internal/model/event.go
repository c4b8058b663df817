package model

import "time"

// KeyEventType identifies what happened to a key or requester.
type KeyEventType string

const (
	EventKeyIssued        KeyEventType = "key.issued"
	EventKeyDeleted       KeyEventType = "key.deleted"
	EventKeyExpiredPurged KeyEventType = "key.expired_purged"
	EventKeyUsed          KeyEventType = "key.used"
	EventAccessChanged    KeyEventType = "access.changed"
)

// ValidEventTypes lists every event type the worker accepts.
var ValidEventTypes = []KeyEventType{
	EventKeyIssued,
	EventKeyDeleted,
	EventKeyExpiredPurged,
	EventKeyUsed,
	EventAccessChanged,
}

// KeyEvent is one entry of the lifecycle audit trail.
type KeyEvent struct {
	ID         string       `json:"id"`
	StreamID   string       `json:"streamId"`
	Type       KeyEventType `json:"type"`
	AppID      string       `json:"appId,omitempty"`
	Keys       []string     `json:"keys,omitempty"`
	Actor      string       `json:"actor,omitempty"`
	TargetID   string       `json:"targetId,omitempty"`
	Count      int64        `json:"count"`
	Enabled    *bool        `json:"enabled,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}
