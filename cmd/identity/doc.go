// Package identity implements pulse's user and credential foundation.
//
// It owns the User record (profile fields, password hash, and the single
// currently-valid refresh token), password hashing, ULID generation, and the
// store implementations used by the HTTP and session layers.
//
// This package is intentionally dependency-light and security-first.
package identity
