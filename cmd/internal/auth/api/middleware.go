package authapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/session"
)

type userCtxKey struct{}

// UserFromContext returns the identity attached by the auth guard.
// Downstream handlers (post/comment CRUD) use it for owner checks.
func UserFromContext(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(identity.User)
	return u, ok
}

// RequireAuth is the request-time auth guard: it extracts the bearer access
// token, verifies it, resolves the acting identity (sans credential
// material), and attaches it to the request context.
//
// It never reads or writes the stored refresh token.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.resolveRequest(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userCtxKey{}, user)))
	})
}

// resolveRequest authenticates a single request, writing the error response
// itself when authentication fails.
func (h *Handler) resolveRequest(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token", "not authorized, no token")
		return identity.User{}, false
	}

	user, err := h.sessions.ResolveAccess(r.Context(), time.Now().UTC(), token)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenExpired):
			writeError(w, http.StatusUnauthorized, "token_expired", "not authorized, token expired")
		case errors.Is(err, session.ErrUserNotFound):
			writeError(w, http.StatusUnauthorized, "user_not_found", "not authorized, user not found")
		case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrMissingToken):
			writeError(w, http.StatusUnauthorized, "token_invalid", "not authorized, token failed")
		default:
			h.log.Error("auth.guard.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return identity.User{}, false
	}
	return user, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
