package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrNotActive    = errors.New("not_active")

	// ErrTokenReused marks a refresh token that no longer matches the stored
	// value: it was already rotated or revoked. The store clears the stored
	// token before returning this, collapsing the session.
	ErrTokenReused = errors.New("token_reused")
)
