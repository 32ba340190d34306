package authapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/session"
)

// Handler wires the auth and profile HTTP endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	store    identity.Store
	sessions *session.Service
}

// NewHandler constructs the auth Handler.
func NewHandler(log *slog.Logger, cfg Config, store identity.Store, sessions *session.Service) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("authapi: nil store")
	}
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}
	return &Handler{log: log, cfg: cfg, store: store, sessions: sessions}, nil
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/users/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, err := h.sessions.Register(ctx, now, session.RegisterInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Password:       req.Password,
		Bio:            req.Bio,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "duplicate_email", "user already exists with this email")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "validation_error", "invalid user data")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	registrations.Inc()
	h.log.Info("auth.register.success", "user_id", issued.User.ID)

	writeJSON(w, http.StatusCreated, toAuthResponse(issued.User, issued.AccessToken, issued.RefreshToken))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, err := h.sessions.Login(ctx, now, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			loginAttempts.WithLabelValues("invalid_credentials").Inc()
			h.log.Info("auth.login.failed", "email_norm", identity.NormalizeEmail(req.Email))
			// Uniform message: never reveal whether the email exists.
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	loginAttempts.WithLabelValues("success").Inc()
	h.log.Info("auth.login.success", "user_id", issued.User.ID)

	writeJSON(w, http.StatusOK, toAuthResponse(issued.User, issued.AccessToken, issued.RefreshToken))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// An absent body means a missing token, not malformed JSON. io.EOF covers
	// chunked requests, where ContentLength is unknown.
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, err := h.sessions.Refresh(ctx, now, req.Token)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrMissingToken):
			writeError(w, http.StatusUnauthorized, "missing_token", "refresh token is required")
		case errors.Is(err, session.ErrReuseDetected):
			// Security incident: distinct on the server, generic to the client.
			refreshReuse.Inc()
			h.log.Warn("auth.refresh.reuse_detected", "remote", r.RemoteAddr)
			writeError(w, http.StatusForbidden, "invalid_refresh_token", "invalid or expired refresh token, please log in again")
		case errors.Is(err, session.ErrInvalidToken),
			errors.Is(err, session.ErrTokenExpired),
			errors.Is(err, session.ErrSessionRevoked),
			errors.Is(err, session.ErrUserNotFound):
			writeError(w, http.StatusForbidden, "invalid_refresh_token", "invalid or expired refresh token, please log in again")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	refreshRotations.Inc()

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	user, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.sessions.Logout(ctx, now, user.ID); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.logout", "user_id", user.ID)
	writeJSON(w, http.StatusOK, messageResponse{Message: "user logged out successfully"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetMe(w, r)
	case http.MethodPut:
		h.handleUpdateMe(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	// The store hashes only when the change-set carries a password.
	updated, err := h.store.UpdateProfile(ctx, user.ID, identity.UpdateProfileInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Bio:            req.Bio,
		ProfilePicture: req.ProfilePicture,
		Password:       req.Password,
		Now:            now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "duplicate_email", "user already exists with this email")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "validation_error", "invalid user data")
		case identity.IsNotFound(err):
			writeError(w, http.StatusUnauthorized, "user_not_found", "not authorized, user not found")
		default:
			h.log.Error("users.update_profile.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.log.Info("users.update_profile", "user_id", user.ID, "password_changed", req.Password != nil)
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}
