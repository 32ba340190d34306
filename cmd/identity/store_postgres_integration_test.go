package identity

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require PULSE_TEST_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.
//
// The table DDL is read from db/migrations so the store is exercised against
// the schema that production actually gets.

func TestPostgresStore_CreateUser_AndLoginFetch(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyUsersMigration(t, pool, schema)

	s := mustNewUserStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com",
		Password:  "very-strong-password-1",
		Now:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.EmailNorm != "ada@example.com" {
		t.Fatalf("email_norm = %q", u.EmailNorm)
	}
	if u.ProfilePicture == "" {
		t.Fatalf("default profile picture not applied")
	}

	ua, err := s.GetUserForLogin(ctx, "ADA@example.COM")
	if err != nil {
		t.Fatalf("login fetch: %v", err)
	}
	if ua.User.ID != u.ID {
		t.Fatalf("login fetch resolved %q, want %q", ua.User.ID, u.ID)
	}
	if ok, err := VerifyPassword("very-strong-password-1", ua.PasswordHash); err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
	if ua.RefreshToken != "" {
		t.Fatalf("fresh user must have no stored refresh token, got %q", ua.RefreshToken)
	}
}

func TestPostgresStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyUsersMigration(t, pool, schema)

	s := mustNewUserStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.CreateUser(ctx, CreateUserInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "User@Example.com",
		Password:  "very-strong-password-1",
		Now:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	// Same email (case-insensitive) should conflict.
	_, err = s.CreateUser(ctx, CreateUserInput{
		FirstName: "Bob",
		LastName:  "Builder",
		Email:     "user@example.COM",
		Password:  "very-strong-password-2",
		Now:       time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_RotateLifecycle(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyUsersMigration(t, pool, schema)

	s := mustNewUserStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC()
	u, err := s.CreateUser(ctx, CreateUserInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "rotate@example.com",
		Password:  "very-strong-password-1",
		Now:       now,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	// No session yet: rotation refuses.
	err = s.RotateRefreshToken(ctx, u.ID, "r0", "r1", now)
	if !IsNotActive(err) {
		t.Fatalf("rotate without session: got %v, want not-active", err)
	}

	if err := s.SetRefreshToken(ctx, u.ID, "r1", now); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := s.RotateRefreshToken(ctx, u.ID, "r1", "r2", now); err != nil {
		t.Fatalf("rotate r1->r2: %v", err)
	}

	// Replaying r1 is reuse; the collapse must be committed, so the current
	// token r2 is dead afterwards too.
	err = s.RotateRefreshToken(ctx, u.ID, "r1", "r3", now)
	if !IsTokenReused(err) {
		t.Fatalf("replay of r1: got %v, want reuse", err)
	}
	err = s.RotateRefreshToken(ctx, u.ID, "r2", "r3", now)
	if !IsNotActive(err) {
		t.Fatalf("rotate after collapse: got %v, want not-active", err)
	}

	ua, err := s.GetUserForLogin(ctx, "rotate@example.com")
	if err != nil {
		t.Fatalf("login fetch: %v", err)
	}
	if ua.RefreshToken != "" {
		t.Fatalf("collapsed session left a stored token: %q", ua.RefreshToken)
	}
}

func TestPostgresStore_ClearRefreshToken_Idempotent(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyUsersMigration(t, pool, schema)

	s := mustNewUserStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	u, err := s.CreateUser(ctx, CreateUserInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "logout@example.com",
		Password:  "very-strong-password-1",
		Now:       now,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := s.SetRefreshToken(ctx, u.ID, "r1", now); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := s.ClearRefreshToken(ctx, u.ID, now); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.ClearRefreshToken(ctx, u.ID, now); err != nil {
		t.Fatalf("second clear: %v", err)
	}

	err = s.RotateRefreshToken(ctx, u.ID, "r1", "r2", now)
	if !IsNotActive(err) {
		t.Fatalf("rotate after logout: got %v, want not-active", err)
	}
}

func mustNewUserStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PULSE_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PULSE_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse PULSE_TEST_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (PULSE_TEST_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

// mustApplyUsersMigration runs db/migrations/0001_users.sql against the test
// schema. Rewriting "pulse." to the per-test schema is intentional: if the
// migration and the store disagree, these tests fail rather than a hand-copied
// DDL masking the drift.
func mustApplyUsersMigration(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	raw, err := os.ReadFile("../../db/migrations/0001_users.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}

	sql := string(raw)
	sql = strings.ReplaceAll(sql, "CREATE SCHEMA IF NOT EXISTS pulse;", "")
	sql = strings.ReplaceAll(sql, "pulse.", pgxIdent1(schema)+".")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, sql); err != nil {
		t.Fatalf("apply users migration: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func pgxIdent1(ident string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection in dynamic DDL.
	return pgx.Identifier{ident}.Sanitize()
}
