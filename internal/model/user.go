// Package model defines domain entities for the application.
package model

import "time"

// User records whether a caller identity may invoke gated commands.
// Rows are created implicitly the first time an operator enables or
// disables the caller.
type User struct {
	DiscordID    string    `json:"discordId"`
	IsBotEnabled bool      `json:"isBotEnabled"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Entitlement is the resolved access state of a requester.
type Entitlement int

const (
	// EntitlementUnknown means no User record exists for the requester.
	EntitlementUnknown Entitlement = iota
	EntitlementDisabled
	EntitlementEnabled
)

// String returns the entitlement name used in logs.
func (e Entitlement) String() string {
	switch e {
	case EntitlementEnabled:
		return "enabled"
	case EntitlementDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Allowed reports whether the entitlement grants access.
// Unknown requesters are denied.
func (e Entitlement) Allowed() bool {
	return e == EntitlementEnabled
}

// EntitlementOf resolves the entitlement carried by a User record.
// A nil user resolves to EntitlementUnknown.
func EntitlementOf(u *User) Entitlement {
	if u == nil {
		return EntitlementUnknown
	}
	if u.IsBotEnabled {
		return EntitlementEnabled
	}
	return EntitlementDisabled
}
