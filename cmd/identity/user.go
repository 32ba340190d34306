package identity

import (
	"context"
	"time"
)

// DefaultProfilePicture is the placeholder used until the user uploads one.
const DefaultProfilePicture = "https://placehold.co/200x200/EFEFEF/AAAAAA&text=No+Image"

// User is pulse's canonical security principal.
//
// PasswordHash and RefreshToken are sensitive and are never populated on the
// read paths used by the HTTP layer; they only travel through UserAuth.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	EmailNorm string

	Bio            string
	ProfilePicture string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserAuth carries the credential material needed by login and refresh.
// IMPORTANT: never serialize this type; it exists only inside the auth core.
type UserAuth struct {
	User         User
	PasswordHash string

	// RefreshToken is the single currently-valid refresh token, stored
	// verbatim. Empty means no active session.
	RefreshToken string
}

// CreateUserInput describes a registration request.
// FirstName, LastName, Email and Password are required.
type CreateUserInput struct {
	FirstName      string
	LastName       string
	Email          string
	Password       string
	Bio            string
	ProfilePicture string
	Now            time.Time
}

// UpdateProfileInput is a partial profile change-set. Nil fields are left
// untouched. Password, when present, is re-hashed; the store must never hash
// on updates that do not carry a password.
type UpdateProfileInput struct {
	FirstName      *string
	LastName       *string
	Email          *string
	Bio            *string
	ProfilePicture *string
	Password       *string
	Now            time.Time
}

// Store is the credential persistence boundary.
type Store interface {
	// CreateUser validates input, hashes the password, and creates the user.
	// Returns ConflictError{Field: "email"} when the email is already taken
	// (case-insensitive).
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserByID loads a user without credential material.
	GetUserByID(ctx context.Context, id string) (User, error)

	// GetUserForLogin loads a user by normalized email including credential
	// material. Returns NotFoundError when no such user exists; callers must
	// collapse that with a bad password into one uniform failure.
	GetUserForLogin(ctx context.Context, email string) (UserAuth, error)

	// UpdateProfile applies a partial change-set. The password is hashed only
	// when the change-set carries one.
	UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (User, error)

	// SetRefreshToken overwrites the stored refresh token (login/register).
	SetRefreshToken(ctx context.Context, userID, token string, now time.Time) error

	// ClearRefreshToken removes the stored refresh token. Idempotent: clearing
	// an already-empty token is not an error.
	ClearRefreshToken(ctx context.Context, userID string, now time.Time) error

	// RotateRefreshToken atomically compares presented with the stored token
	// and, on match, overwrites it with next.
	//
	// Security contract:
	//   - The read-compare-overwrite must be serialized per user; two
	//     concurrent calls presenting the same token must not both succeed.
	//   - Stored token empty (logged out / revoked) -> ErrNotActive.
	//   - Mismatch -> the stored token is cleared in the same atomic scope
	//     and ErrTokenReused is returned.
	RotateRefreshToken(ctx context.Context, userID, presented, next string, now time.Time) error
}
