package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pulse/cmd/identity"
)

// Claims is the minimal identity envelope carried by both token classes.
type Claims struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// TokenManager issues and verifies the two token classes. Access and refresh
// tokens use separate signing secrets; a token of one class never verifies
// against the other.
type TokenManager interface {
	IssueAccess(userID string, now time.Time) (token string, exp time.Time, err error)
	IssueRefresh(userID string, now time.Time) (token string, exp time.Time, err error)
	VerifyAccess(token string, now time.Time) (Claims, error)
	VerifyRefresh(token string, now time.Time) (Claims, error)
}

type jwtManager struct {
	issuer    string
	clockSkew time.Duration

	accessTTL  time.Duration
	refreshTTL time.Duration

	accessSecret  []byte
	refreshSecret []byte
}

// NewJWTManager builds a TokenManager signing HS256 JWTs.
//
// Each token carries a random "jti", so two tokens issued for the same subject
// in the same second still differ; rotation depends on that.
func NewJWTManager(cfg Config) (TokenManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &jwtManager{
		issuer:        cfg.Issuer,
		clockSkew:     cfg.ClockSkew,
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
	}, nil
}

func (m *jwtManager) IssueAccess(userID string, now time.Time) (string, time.Time, error) {
	return m.issue(userID, now, m.accessTTL, m.accessSecret)
}

func (m *jwtManager) IssueRefresh(userID string, now time.Time) (string, time.Time, error) {
	return m.issue(userID, now, m.refreshTTL, m.refreshSecret)
}

func (m *jwtManager) VerifyAccess(token string, now time.Time) (Claims, error) {
	return m.verify(token, now, m.accessSecret)
}

func (m *jwtManager) VerifyRefresh(token string, now time.Time) (Claims, error) {
	return m.verify(token, now, m.refreshSecret)
}

func (m *jwtManager) issue(userID string, now time.Time, ttl time.Duration, secret []byte) (string, time.Time, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	exp := now.Add(ttl)

	jti, err := identity.NewULID(now)
	if err != nil {
		return "", time.Time{}, err
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        jti,
		Subject:   userID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})

	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtManager) verify(token string, now time.Time, secret []byte) (Claims, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &rc,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}

	if rc.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		UserID:  rc.Subject,
		TokenID: rc.ID,
		Issuer:  rc.Issuer,
	}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	return out, nil
}
