// Package common defines shared constants and sentinel errors used across
// the vault engine and its transports. Callers should use errors.Is to
// match these values; transports translate them into status codes.
package common

import "errors"

var (
	// ErrInvalidPath covers traversal attempts and missing paths where
	// existence is required. Surfaced as not found.
	ErrInvalidPath = errors.New("not found")

	// ErrConflict means the destination already exists or the subtree is
	// already encrypted.
	ErrConflict = errors.New("conflict")

	// ErrForbidden covers protected roots and wrong or missing folder keys.
	ErrForbidden = errors.New("forbidden")

	// ErrQuotaExceeded is returned when a write would exceed the account limit.
	ErrQuotaExceeded = errors.New("storage limit exceeded")

	// ErrValidation covers missing fields, malformed ranges and unsupported
	// extensions.
	ErrValidation = errors.New("validation error")

	// Auth errors.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidToken    = errors.New("invalid token")

	// ErrConversion marks a failed office-document conversion.
	ErrConversion = errors.New("conversion failed")
)
