package identity

import (
	"regexp"
	"strings"
)

// Minimal shape check; real deliverability is out of scope.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s looks like an email address after trimming.
func ValidEmail(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}
