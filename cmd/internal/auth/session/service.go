package session

import (
	"context"
	"strings"
	"time"

	"pulse/cmd/identity"
)

// Service implements the high-level auth operations for pulse:
// register, login, refresh (rotation + reuse detection), logout, and
// access-token resolution for the request guard.
//
// Each operation is scoped to one user record; per-user serialization of the
// refresh compare-and-swap is the store's responsibility.
type Service struct {
	cfg    Config
	tokens TokenManager
	store  identity.Store

	// dummyHash equalizes login timing when the email is unknown.
	dummyHash string
}

// Issued is the result of register, login, or refresh.
// User is zero-valued on refresh, which returns only tokens.
type Issued struct {
	User         identity.User
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// RegisterInput describes a registration request. Validation of the required
// fields happens in the store; the password is hashed there and never echoed.
type RegisterInput struct {
	FirstName      string
	LastName       string
	Email          string
	Password       string
	Bio            string
	ProfilePicture string
}

// NewService constructs a Service from configuration, a credential store, and
// a token manager.
func NewService(cfg Config, store identity.Store, tokens TokenManager) *Service {
	s := &Service{cfg: cfg, store: store, tokens: tokens}

	if hash, err := identity.HashPassword("dummy-password-for-timing-only"); err == nil {
		s.dummyHash = hash
	}
	return s
}

// Register creates a user and opens its first session.
//
// Store-level errors pass through untranslated: the boundary maps
// identity.ErrInvalidInput and identity.ErrConflict to validation and
// duplicate-email responses.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput) (Issued, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	user, err := s.store.CreateUser(ctx, identity.CreateUserInput{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          in.Email,
		Password:       in.Password,
		Bio:            in.Bio,
		ProfilePicture: in.ProfilePicture,
		Now:            now,
	})
	if err != nil {
		return Issued{}, err
	}

	return s.openSession(ctx, now, user)
}

// Login verifies credentials and opens a fresh session, overwriting any
// previously stored refresh token.
//
// Unknown email and wrong password both yield ErrInvalidCredentials; a dummy
// bcrypt verify runs on the unknown-email path so the two cases take
// comparable time.
func (s *Service) Login(ctx context.Context, now time.Time, email, password string) (Issued, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ua, err := s.store.GetUserForLogin(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			if s.dummyHash != "" {
				_, _ = identity.VerifyPassword(password, s.dummyHash)
			}
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, err
	}

	ok, err := identity.VerifyPassword(password, ua.PasswordHash)
	if err != nil || !ok {
		return Issued{}, ErrInvalidCredentials
	}

	return s.openSession(ctx, now, ua.User)
}

// Refresh rotates a refresh token.
//
// Protocol, in order:
//  1. blank token            -> ErrMissingToken
//  2. bad signature / expiry -> ErrInvalidToken / ErrTokenExpired
//  3. subject vanished       -> ErrUserNotFound
//  4. stored token empty     -> ErrSessionRevoked
//     stored token mismatch  -> ErrReuseDetected (session collapsed by the store)
//     stored token match     -> both tokens reissued, stored value overwritten
//
// After a successful rotation the presented token is permanently dead; any
// later presentation of it takes the mismatch path.
func (s *Service) Refresh(ctx context.Context, now time.Time, presented string) (Issued, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	presented = strings.TrimSpace(presented)
	if presented == "" {
		return Issued{}, ErrMissingToken
	}

	claims, err := s.tokens.VerifyRefresh(presented, now)
	if err != nil {
		return Issued{}, err
	}

	newRefresh, refreshExp, err := s.tokens.IssueRefresh(claims.UserID, now)
	if err != nil {
		return Issued{}, err
	}

	if err := s.store.RotateRefreshToken(ctx, claims.UserID, presented, newRefresh, now); err != nil {
		switch {
		case identity.IsNotFound(err):
			return Issued{}, ErrUserNotFound
		case identity.IsTokenReused(err):
			return Issued{}, ErrReuseDetected
		case identity.IsNotActive(err):
			return Issued{}, ErrSessionRevoked
		default:
			return Issued{}, err
		}
	}

	accessToken, accessExp, err := s.tokens.IssueAccess(claims.UserID, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newRefresh,
		RefreshExp:   refreshExp,
	}, nil
}

// Logout clears the stored refresh token unconditionally. Idempotent: logging
// out twice is not an error.
func (s *Service) Logout(ctx context.Context, now time.Time, userID string) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	err := s.store.ClearRefreshToken(ctx, userID, now)
	if err != nil && identity.IsNotFound(err) {
		return ErrUserNotFound
	}
	return err
}

// ResolveAccess verifies an access token and resolves the acting identity,
// excluding credential material. This is a pure read; it never touches the
// stored refresh token.
func (s *Service) ResolveAccess(ctx context.Context, now time.Time, token string) (identity.User, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return identity.User{}, ErrMissingToken
	}

	claims, err := s.tokens.VerifyAccess(token, now)
	if err != nil {
		return identity.User{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, ErrUserNotFound
		}
		return identity.User{}, err
	}
	return user, nil
}

// openSession issues both token classes and stores the refresh token.
func (s *Service) openSession(ctx context.Context, now time.Time, user identity.User) (Issued, error) {
	accessToken, accessExp, err := s.tokens.IssueAccess(user.ID, now)
	if err != nil {
		return Issued{}, err
	}
	refreshToken, refreshExp, err := s.tokens.IssueRefresh(user.ID, now)
	if err != nil {
		return Issued{}, err
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, refreshToken, now); err != nil {
		return Issued{}, err
	}

	return Issued{
		User:         user,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
	}, nil
}
