package model

import (
	"testing"
	"time"
)

func TestKeyStatus_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		name string
		from KeyStatus
		to   KeyStatus
		want bool
	}{
		{"unused to used", KeyStatusUnused, KeyStatusUsed, true},
		{"unused to expired", KeyStatusUnused, KeyStatusExpired, true},
		{"used to expired", KeyStatusUsed, KeyStatusExpired, true},
		{"used to unused", KeyStatusUsed, KeyStatusUnused, false},
		{"expired to unused", KeyStatusExpired, KeyStatusUnused, false},
		{"expired to used", KeyStatusExpired, KeyStatusUsed, false},
		{"unused to unused", KeyStatusUnused, KeyStatusUnused, false},
		{"unknown source", KeyStatus("revoked"), KeyStatusUsed, false},
		{"unknown target", KeyStatusUnused, KeyStatus("revoked"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
				t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestKey_IsExpiredAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	testCases := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"past expiry", &past, true},
		{"future expiry", &future, false},
		{"exactly now", &now, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := &Key{Status: KeyStatusUnused, ExpiresAt: tc.expiresAt}
			if got := key.IsExpiredAt(now); got != tc.want {
				t.Errorf("IsExpiredAt() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExpiryFromDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seven := 7
	zero := 0

	if got := ExpiryFromDays(now, nil); got != nil {
		t.Errorf("nil days: expected no expiry, got %v", got)
	}
	if got := ExpiryFromDays(now, &zero); got != nil {
		t.Errorf("zero days: expected no expiry, got %v", got)
	}

	got := ExpiryFromDays(now, &seven)
	if got == nil {
		t.Fatal("expected expiry to be set")
	}
	if want := now.Add(7 * 24 * time.Hour); !got.Equal(want) {
		t.Errorf("expiry = %v, want %v", got, want)
	}
}

func TestExpiryFromDays_LongLifetimes(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	for _, days := range []int{1, 365, MaxLifetimeDays, 200000} {
		days := days
		got := ExpiryFromDays(now, &days)
		if got == nil {
			t.Fatalf("%d days: expected expiry to be set", days)
		}
		if !got.After(now) {
			t.Errorf("%d days: expiry %v is not after %v", days, got, now)
		}
		if want := now.AddDate(0, 0, days); !got.Equal(want) {
			t.Errorf("%d days: expiry = %v, want %v", days, got, want)
		}
	}
}

func TestEntitlementOf(t *testing.T) {
	testCases := []struct {
		name    string
		user    *User
		want    Entitlement
		allowed bool
	}{
		{"no record", nil, EntitlementUnknown, false},
		{"disabled", &User{DiscordID: "1", IsBotEnabled: false}, EntitlementDisabled, false},
		{"enabled", &User{DiscordID: "1", IsBotEnabled: true}, EntitlementEnabled, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := EntitlementOf(tc.user)
			if got != tc.want {
				t.Errorf("EntitlementOf() = %s, want %s", got, tc.want)
			}
			if got.Allowed() != tc.allowed {
				t.Errorf("Allowed() = %v, want %v", got.Allowed(), tc.allowed)
			}
		})
	}
}
