package model

import (
	"time"
)

// KeyStatus is the lifecycle state of a license key.
type KeyStatus string

const (
	KeyStatusUnused  KeyStatus = "unused"
	KeyStatusUsed    KeyStatus = "used"
	KeyStatusExpired KeyStatus = "expired"
)

// IsValid checks if the status is one of the known values.
func (s KeyStatus) IsValid() bool {
	return s == KeyStatusUnused || s == KeyStatusUsed || s == KeyStatusExpired
}

// rank orders statuses along the only permitted direction of travel.
func (s KeyStatus) rank() int {
	switch s {
	case KeyStatusUnused:
		return 0
	case KeyStatusUsed:
		return 1
	case KeyStatusExpired:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next keeps the
// unused -> used -> expired ordering. Staying in place is not a transition.
func (s KeyStatus) CanTransitionTo(next KeyStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.rank() > s.rank()
}

// Key represents one issuable license token.
type Key struct {
	ID            string     `json:"id"`
	Key           string     `json:"key"`
	AppID         string     `json:"appId"`
	Status        KeyStatus  `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	UserDiscordID *string    `json:"userDiscordId"`
}

// IsExpiredAt reports whether the key's expiry lies strictly before t.
// Keys without an expiry never expire. The stored status is not consulted.
func (k *Key) IsExpiredAt(t time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(t)
}

// KeyStats summarises the keys of one App.
// Expired keys count towards TotalKeys only.
type KeyStats struct {
	TotalKeys  int64 `json:"totalKeys"`
	UnusedKeys int64 `json:"unusedKeys"`
	UsedKeys   int64 `json:"usedKeys"`
}

// MaxLifetimeDays caps the lifetime a key can be issued with.
const MaxLifetimeDays = 36500

// ExpiryFromDays computes the expiry for a key issued at now with a
// lifetime of days whole days. Nil or zero days yields no expiry.
func ExpiryFromDays(now time.Time, days *int) *time.Time {
	if days == nil || *days == 0 {
		return nil
	}
	expiresAt := now.AddDate(0, 0, *days)
	return &expiresAt
}
