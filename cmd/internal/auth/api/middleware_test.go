package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/session"
)

func newTestHandler(t *testing.T) (*Handler, *session.Service) {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.AccessSecret = strings.Repeat("a", 32)
	cfg.RefreshSecret = strings.Repeat("r", 32)

	tokens, err := session.NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	svc := session.NewService(cfg, identity.NewInMemoryStore(), tokens)

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h, err := NewHandler(log, LoadConfigFromEnv(), identity.NewInMemoryStore(), svc)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, svc
}

func TestRequireAuth_AttachesUserToContext(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.AccessSecret = strings.Repeat("a", 32)
	cfg.RefreshSecret = strings.Repeat("r", 32)

	tokens, err := session.NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	store := identity.NewInMemoryStore()
	svc := session.NewService(cfg, store, tokens)

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h, err := NewHandler(log, LoadConfigFromEnv(), store, svc)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	issued, err := svc.Register(context.Background(), time.Now().UTC(), session.RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@x.com",
		Password:  "secret1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	var got identity.User
	guarded := h.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			t.Fatalf("user missing from context")
		}
		got = u
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+issued.AccessToken)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got.ID != issued.User.ID || got.Email != "ada@x.com" {
		t.Fatalf("context user = %+v", got)
	}
}

func TestRequireAuth_RejectsWithoutToken(t *testing.T) {
	h, _ := newTestHandler(t)

	guarded := h.RequireAuth(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("next handler must not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errCode(t, body) != "missing_token" {
		t.Fatalf("code=%q", errCode(t, body))
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer tok", "tok"},
		{"wrong scheme", "Basic dXNlcg==", ""},
		{"scheme only", "Bearer", ""},
		{"padded token", "Bearer   tok  ", "tok"},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(r); got != tc.want {
			t.Fatalf("%s: bearerToken=%q want=%q", tc.name, got, tc.want)
		}
	}
}
