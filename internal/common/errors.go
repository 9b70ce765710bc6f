// Package common defines shared constants and sentinel errors used across
// Heimdallr components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Configuration errors (fatal at startup, never per-request).
	ErrMissingSecret = errors.New("secret key is not set")

	// Validation errors, reported before the store is touched.
	ErrInvalidEmail = errors.New("email address is not valid")
	ErrWeakPassword = errors.New("password is too short")

	// Credential store errors.
	ErrDuplicateEmail   = errors.New("user with this email address already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreWrite       = errors.New("store write failed")
	ErrHashingFailed    = errors.New("password hashing failed")

	// Login errors. ErrorNotFound from the repository collapses into
	// ErrInvalidCredentials before leaving the credential store, so an
	// unknown email and a wrong password are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
)
