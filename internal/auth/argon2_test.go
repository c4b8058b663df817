package auth

import (
	"strings"
	"testing"
)

func TestHashOperatorKey_Format(t *testing.T) {
	t.Parallel()

	hash, err := HashOperatorKey("kg_op_0123456789abcdef")
	if err != nil {
		t.Fatalf("HashOperatorKey failed: %v", err)
	}

	// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("Hash should have 6 parts, got: %d", len(parts))
	}
	if parts[1] != "argon2id" {
		t.Errorf("Expected argon2id algorithm, got: %s", parts[1])
	}
	if parts[2] != "v=19" {
		t.Errorf("Expected v=19, got: %s", parts[2])
	}
	if parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("Expected m=65536,t=3,p=4, got: %s", parts[3])
	}
}

func TestHashOperatorKey_SaltedPerCall(t *testing.T) {
	t.Parallel()

	key := "kg_op_same_key"

	hash1, err := HashOperatorKey(key)
	if err != nil {
		t.Fatalf("HashOperatorKey failed: %v", err)
	}
	hash2, err := HashOperatorKey(key)
	if err != nil {
		t.Fatalf("HashOperatorKey failed: %v", err)
	}

	if hash1 == hash2 {
		t.Error("Same key should produce different hashes due to random salt")
	}

	match1, _ := VerifyOperatorKey(key, hash1)
	match2, _ := VerifyOperatorKey(key, hash2)
	if !match1 || !match2 {
		t.Error("Both hashes should verify correctly")
	}
}

func TestVerifyOperatorKey(t *testing.T) {
	t.Parallel()

	key := "kg_op_correct"
	hash, err := HashOperatorKey(key)
	if err != nil {
		t.Fatalf("HashOperatorKey failed: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"correct", key, true},
		{"wrong", "kg_op_incorrect", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, err := VerifyOperatorKey(tt.input, hash)
			if err != nil {
				t.Fatalf("VerifyOperatorKey returned error: %v", err)
			}
			if match != tt.want {
				t.Errorf("VerifyOperatorKey(%q) = %v, want %v", tt.input, match, tt.want)
			}
		})
	}
}

func TestVerifyOperatorKey_InvalidHashFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"wrong format", "not-a-hash", ErrInvalidHash},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$salt$hash", ErrInvalidHash},
		{"missing parts", "$argon2id$v=19$m=65536", ErrInvalidHash},
		{"wrong version", "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrIncompatibleVersion},
		{"zero threads", "$argon2id$v=19$m=65536,t=3,p=0$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrInvalidHash},
		{"zero passes", "$argon2id$v=19$m=65536,t=0,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrInvalidHash},
		{"memory above cap", "$argon2id$v=19$m=4194304,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrInvalidHash},
		{"empty salt", "$argon2id$v=19$m=65536,t=3,p=4$$c29tZWhhc2hoZXJl", ErrInvalidHash},
		{"leading garbage", "x$argon2id$v=19$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrInvalidHash},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, err := VerifyOperatorKey("key", tt.hash)
			if err != tt.wantErr {
				t.Errorf("VerifyOperatorKey error = %v, want %v", err, tt.wantErr)
			}
			if match {
				t.Error("Invalid hash should never match")
			}
		})
	}
}

func TestCheckOperatorKeyHash(t *testing.T) {
	t.Parallel()

	hash, err := HashOperatorKey("kg_op_startup")
	if err != nil {
		t.Fatalf("HashOperatorKey failed: %v", err)
	}
	if err := CheckOperatorKeyHash(hash); err != nil {
		t.Errorf("CheckOperatorKeyHash(fresh hash) = %v, want nil", err)
	}
	if err := CheckOperatorKeyHash("$argon2id$v=19$m=65536,t=3,p=0$c29tZXNhbHQ$c29tZWhhc2g"); err != ErrInvalidHash {
		t.Errorf("CheckOperatorKeyHash(zero threads) = %v, want %v", err, ErrInvalidHash)
	}
}
