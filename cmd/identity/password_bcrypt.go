// Package identity password hashing (bcrypt).
//
// bcrypt embeds a per-call random salt and the cost factor in the encoded
// hash, so Verify needs no stored parameters. Cost 10 balances login latency
// against brute-force resistance.
package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the fixed work factor applied to new hashes.
const BcryptCost = 10

// MinPasswordLength is the baseline policy for plaintext passwords.
const MinPasswordLength = 6

// ErrPasswordTooShort is returned by HashPassword for sub-policy plaintexts.
var ErrPasswordTooShort = errors.New("password too short")

// HashPassword returns a bcrypt hash of the plaintext.
//
// Hashing runs only when a password is being set or changed; stores must not
// call this on saves that do not touch the password field.
func HashPassword(plain string) (string, error) {
	if len(plain) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	// bcrypt operates on at most 72 bytes; reject longer inputs instead of
	// silently truncating.
	if len(plain) > 72 {
		return "", errors.New("password too long")
	}

	b, err := bcrypt.GenerateFromPassword([]byte(plain), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword checks a plaintext against a stored bcrypt hash using
// bcrypt's own constant-time comparison. It returns false (not an error) for
// a mismatch; errors are reserved for malformed hashes.
func VerifyPassword(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
