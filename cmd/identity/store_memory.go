package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev-only fallback when DB is not configured, and the
// store used by unit tests.
//
// The mutex is held across the whole read-compare-overwrite in
// RotateRefreshToken, which gives the same per-user serialization the
// Postgres store gets from row locking.
type InMemoryStore struct {
	mu      sync.Mutex
	users   map[string]*memUser // id -> record
	byEmail map[string]string   // email_norm -> id
}

type memUser struct {
	user         User
	passwordHash string
	refreshToken string
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[string]*memUser),
		byEmail: make(map[string]string),
	}
}

// CreateUser validates the registration input, hashes the password, and
// creates the user record.
func (s *InMemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Bio = strings.TrimSpace(in.Bio)

	if in.FirstName == "" {
		return User{}, invalid(op, "first name is required")
	}
	if in.LastName == "" {
		return User{}, invalid(op, "last name is required")
	}
	if !ValidEmail(in.Email) {
		return User{}, invalid(op, "valid email is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	email := strings.TrimSpace(in.Email)
	emailNorm := NormalizeEmail(email)

	picture := strings.TrimSpace(in.ProfilePicture)
	if picture == "" {
		picture = DefaultProfilePicture
	}

	pwHash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, invalid(op, err.Error())
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[emailNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:             id,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          email,
		EmailNorm:      emailNorm,
		Bio:            in.Bio,
		ProfilePicture: picture,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.users[id] = &memUser{user: u, passwordHash: pwHash}
	s.byEmail[emailNorm] = id

	return u, nil
}

// GetUserByID loads a user without credential material.
func (s *InMemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return rec.user, nil
}

// GetUserForLogin loads a user by normalized email including credential material.
func (s *InMemoryStore) GetUserForLogin(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserForLogin"

	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	rec := s.users[id]
	return UserAuth{
		User:         rec.user,
		PasswordHash: rec.passwordHash,
		RefreshToken: rec.refreshToken,
	}, nil
}

// UpdateProfile applies a partial change-set. The password is hashed only
// when the change-set carries one.
func (s *InMemoryStore) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Hash outside the lock; bcrypt is deliberately slow.
	var pwHash string
	if in.Password != nil {
		h, err := HashPassword(*in.Password)
		if err != nil {
			return User{}, invalid(op, err.Error())
		}
		pwHash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	if p := pgTrimPtr(in.FirstName); p != nil {
		rec.user.FirstName = *p
	}
	if p := pgTrimPtr(in.LastName); p != nil {
		rec.user.LastName = *p
	}
	if p := pgTrimPtr(in.Email); p != nil {
		if !ValidEmail(*p) {
			return User{}, invalid(op, "valid email is required")
		}
		norm := NormalizeEmail(*p)
		if other, taken := s.byEmail[norm]; taken && other != userID {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		delete(s.byEmail, rec.user.EmailNorm)
		rec.user.Email = *p
		rec.user.EmailNorm = norm
		s.byEmail[norm] = userID
	}
	if in.Bio != nil {
		rec.user.Bio = strings.TrimSpace(*in.Bio)
	}
	if p := pgTrimPtr(in.ProfilePicture); p != nil {
		rec.user.ProfilePicture = *p
	}
	if in.Password != nil {
		rec.passwordHash = pwHash
	}
	rec.user.UpdatedAt = now

	return rec.user, nil
}

// SetRefreshToken overwrites the stored refresh token.
func (s *InMemoryStore) SetRefreshToken(ctx context.Context, userID, token string, now time.Time) error {
	const op = "identity.SetRefreshToken"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return invalid(op, "missing refresh token")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	rec.refreshToken = token
	rec.user.UpdatedAt = now
	return nil
}

// ClearRefreshToken removes the stored refresh token. Idempotent.
func (s *InMemoryStore) ClearRefreshToken(ctx context.Context, userID string, now time.Time) error {
	const op = "identity.ClearRefreshToken"

	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	rec.refreshToken = ""
	rec.user.UpdatedAt = now
	return nil
}

// RotateRefreshToken compares presented with the stored token under the store
// mutex and, on match, overwrites it with next. See Store for the contract.
func (s *InMemoryStore) RotateRefreshToken(ctx context.Context, userID, presented, next string, now time.Time) error {
	const op = "identity.RotateRefreshToken"

	if err := ctx.Err(); err != nil {
		return err
	}
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return invalid(op, "missing presented token")
	}
	if strings.TrimSpace(next) == "" {
		return invalid(op, "missing next token")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	if rec.refreshToken == "" {
		return OpError{Op: op, Kind: ErrNotActive, Msg: "no active session"}
	}
	if !ctEq(rec.refreshToken, presented) {
		// Reuse of a dead token: collapse the session before reporting.
		rec.refreshToken = ""
		rec.user.UpdatedAt = now
		return OpError{Op: op, Kind: ErrTokenReused, Msg: "stored token mismatch"}
	}

	rec.refreshToken = next
	rec.user.UpdatedAt = now
	return nil
}
