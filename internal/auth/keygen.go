// Package auth provides token generation and operator credential utilities.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// License keys are 8 random bytes rendered as 16 uppercase hex characters.
const (
	LicenseKeyBytes = 8
	LicenseKeyLen   = LicenseKeyBytes * 2
)

// Operator keys are handed to whoever may toggle entitlements.
// Format: kg_op_{secret}
const (
	operatorKeyPrefix   = "kg_op_"
	operatorSecretBytes = 24
)

var licenseKeyRegex = regexp.MustCompile(`^[0-9A-F]{16}$`)

// GenerateLicenseKey returns a fresh random license token.
// Uniqueness is not guaranteed here; the store's unique index decides.
func GenerateLicenseKey() (string, error) {
	buf := make([]byte, LicenseKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// ValidateLicenseKeyFormat checks if the token looks like one we issued.
func ValidateLicenseKeyFormat(key string) bool {
	return licenseKeyRegex.MatchString(key)
}

// GeneratedOperatorKey contains a new operator credential.
type GeneratedOperatorKey struct {
	Plaintext string // Full key (show once only)
	Hash      string // Argon2id hash for OPERATOR_KEY_HASH
}

// GenerateOperatorKey creates an operator credential and its hash.
func GenerateOperatorKey() (*GeneratedOperatorKey, error) {
	secretBytes := make([]byte, operatorSecretBytes)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := operatorKeyPrefix + hex.EncodeToString(secretBytes)

	hash, err := HashOperatorKey(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedOperatorKey{
		Plaintext: plaintext,
		Hash:      hash,
	}, nil
}
