// Package service provides business logic for the application.
package service

import (
	"errors"
	"fmt"
)

// Service errors. The dispatcher maps each of these to a response category.
var (
	ErrAppNotFound       = errors.New("app not found")
	ErrKeyNotFound       = errors.New("key not found")
	ErrConflict          = errors.New("key generation conflict")
	ErrInvalidTransition = errors.New("invalid key status transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnavailable       = errors.New("store unavailable")
)

// storeFailure wraps an unexpected store error so callers can match
// ErrUnavailable while the original cause stays available for logging.
func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
