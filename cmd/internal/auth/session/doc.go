// Package session implements the session-token lifecycle: signed access and
// refresh token issuance, refresh rotation with reuse detection, and
// logout/invalidation.
//
// The state machine per user is: no stored refresh token (no session) ->
// stored token X (active) -> rotated to Y -> ... -> cleared (revoked). A
// refresh token is valid only while it equals the stored value; signature
// validity alone is never enough.
package session
