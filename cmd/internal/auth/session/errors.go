package session

import "errors"

var (
	// ErrMissingToken is returned when a required token is absent.
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned when a token fails signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidCredentials is the uniform login failure. It deliberately does
	// not distinguish unknown email from wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound is returned when a token's subject no longer exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionRevoked is returned when refresh is attempted with no stored
	// token (logged out or collapsed).
	ErrSessionRevoked = errors.New("session revoked")

	// ErrReuseDetected is returned when a rotated refresh token is presented
	// again. The session is already collapsed by the time callers see this.
	// Clients get the same generic response as plain invalidity; the
	// distinction exists for server-side logs and metrics only.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
