package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the credential store over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - RotateRefreshToken is fully atomic and serialized via SELECT ... FOR UPDATE
//   on the user row.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "pulse").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "pulse",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, first_name, last_name, email, email_norm, bio, profile_picture, created_at, updated_at`

// CreateUser validates the registration input, hashes the password, and
// inserts the user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
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

	userID, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, first_name, last_name, email, email_norm, password_hash,
		     bio, profile_picture, refresh_token, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $9)`,
		userID, in.FirstName, in.LastName, email, emailNorm, pwHash,
		in.Bio, picture, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:             userID,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          email,
		EmailNorm:      emailNorm,
		Bio:            in.Bio,
		ProfilePicture: picture,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetUserByID loads a user without credential material.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if strings.TrimSpace(id) == "" {
		return User{}, invalid(op, "missing user id")
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.EmailNorm,
		&u.Bio, &u.ProfilePicture, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// GetUserForLogin loads a user by normalized email including credential material.
func (s *PostgresStore) GetUserForLogin(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserForLogin"

	if s == nil || s.pool == nil {
		return UserAuth{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}

	users := pgIdent(s.schema, "users")

	var (
		ua      UserAuth
		refresh *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash, refresh_token
		   FROM `+users+`
		  WHERE email_norm = $1`,
		NormalizeEmail(email),
	).Scan(&ua.User.ID, &ua.User.FirstName, &ua.User.LastName, &ua.User.Email,
		&ua.User.EmailNorm, &ua.User.Bio, &ua.User.ProfilePicture,
		&ua.User.CreatedAt, &ua.User.UpdatedAt, &ua.PasswordHash, &refresh)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UserAuth{}, err
	}
	if refresh != nil {
		ua.RefreshToken = *refresh
	}
	return ua, nil
}

// UpdateProfile applies a partial change-set to the user row.
//
// The password hash is recomputed only when the change-set carries a password;
// profile-only updates never touch password_hash (no re-hash of a hash).
func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, invalid(op, "missing user id")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sets := []string{"updated_at = $1"}
	args := []any{now}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p := pgTrimPtr(in.FirstName); p != nil {
		sets = append(sets, "first_name = "+arg(*p))
	}
	if p := pgTrimPtr(in.LastName); p != nil {
		sets = append(sets, "last_name = "+arg(*p))
	}
	if p := pgTrimPtr(in.Email); p != nil {
		if !ValidEmail(*p) {
			return User{}, invalid(op, "valid email is required")
		}
		sets = append(sets, "email = "+arg(*p))
		sets = append(sets, "email_norm = "+arg(NormalizeEmail(*p)))
	}
	if in.Bio != nil {
		sets = append(sets, "bio = "+arg(strings.TrimSpace(*in.Bio)))
	}
	if p := pgTrimPtr(in.ProfilePicture); p != nil {
		sets = append(sets, "profile_picture = "+arg(*p))
	}
	if in.Password != nil {
		pwHash, err := HashPassword(*in.Password)
		if err != nil {
			return User{}, invalid(op, err.Error())
		}
		sets = append(sets, "password_hash = "+arg(pwHash))
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`UPDATE `+users+`
		    SET `+strings.Join(sets, ", ")+`
		  WHERE id = `+arg(userID)+`
		  RETURNING `+userColumns,
		args...,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.EmailNorm,
		&u.Bio, &u.ProfilePicture, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}
	return u, nil
}

// SetRefreshToken overwrites the stored refresh token (login/register path).
func (s *PostgresStore) SetRefreshToken(ctx context.Context, userID, token string, now time.Time) error {
	const op = "identity.SetRefreshToken"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if strings.TrimSpace(userID) == "" {
		return invalid(op, "missing user id")
	}
	if strings.TrimSpace(token) == "" {
		return invalid(op, "missing refresh token")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET refresh_token = $1, updated_at = $2 WHERE id = $3`,
		token, now, userID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// ClearRefreshToken removes the stored refresh token (logout). Idempotent.
func (s *PostgresStore) ClearRefreshToken(ctx context.Context, userID string, now time.Time) error {
	const op = "identity.ClearRefreshToken"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if strings.TrimSpace(userID) == "" {
		return invalid(op, "missing user id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET refresh_token = '', updated_at = $1 WHERE id = $2`,
		now, userID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// RotateRefreshToken atomically compares the presented token with the stored
// value and, on match, overwrites it with next.
//
// Returns:
//   - ErrNotActive when no token is stored (logged out / revoked),
//   - ErrTokenReused on mismatch, after clearing the stored token in the same
//     transaction (any further use of either token now fails),
//   - NotFoundError when the user row is gone.
//
// The user row is locked (SELECT ... FOR UPDATE) for the whole
// read-compare-overwrite, so two concurrent calls presenting the same token
// serialize: one rotates, the other observes the new value and hits the reuse
// path.
func (s *PostgresStore) RotateRefreshToken(ctx context.Context, userID, presented, next string, now time.Time) error {
	const op = "identity.RotateRefreshToken"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return invalid(op, "missing user id")
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

	users := pgIdent(s.schema, "users")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the user row to serialize rotations (single-writer).
	var stored *string
	err = tx.QueryRow(ctx,
		`SELECT refresh_token FROM `+users+` WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NotFoundError{Op: op, Resource: "user"}
		}
		return err
	}

	if stored == nil || strings.TrimSpace(*stored) == "" {
		return OpError{Op: op, Kind: ErrNotActive, Msg: "no active session"}
	}

	if !ctEq(*stored, presented) {
		// Reuse of a dead token: collapse the session before reporting.
		if _, err := tx.Exec(ctx,
			`UPDATE `+users+` SET refresh_token = '', updated_at = $1 WHERE id = $2`,
			now, userID,
		); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		return OpError{Op: op, Kind: ErrTokenReused, Msg: "stored token mismatch"}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+users+` SET refresh_token = $1, updated_at = $2 WHERE id = $3`,
		next, now, userID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ctEq compares two token strings in constant time.
func ctEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// pgTrimPtr trims a string pointer, returning nil if result is empty.
func pgTrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_users_email_norm":
		return "email", true
	default:
		if strings.Contains(c, "email") {
			return "email", true
		}
		return "unknown", true
	}
}
