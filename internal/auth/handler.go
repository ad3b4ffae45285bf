package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/models"
	"github.com/ayush/socialgate/internal/request"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password
// alike, so login does not reveal which accounts exist.
var ErrInvalidCredentials = apperr.Authentication(apperr.CodeInvalidCredentials, "Invalid email or password")

// UserStore defines the interface for user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, digest, plaintext string) (bool, error)
}

// Handler holds account HTTP handlers. Handlers return errors; the router
// renders them through the error classifier.
type Handler struct {
	users    UserStore
	hasher   PasswordHasher
	tokens   *TokenService
	identity func(ctx context.Context) (Identity, bool)

	decoyOnce sync.Once
	decoy     string
}

// NewHandler wires the account endpoints. identity reads the caller attached
// by the auth gate.
func NewHandler(users UserStore, hasher PasswordHasher, tokens *TokenService, identity func(ctx context.Context) (Identity, bool)) *Handler {
	return &Handler{users: users, hasher: hasher, tokens: tokens, identity: identity}
}

// Register creates a new user and returns a token for it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) error {
	var req models.RegisterRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	digest, err := h.hasher.Hash(r.Context(), req.Password)
	if err != nil {
		return err
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Email, digest)
	if err != nil {
		return err
	}
	slog.Info("User registered", "user_id", user.ID, "username", user.Username)

	return h.writeToken(w, http.StatusCreated, user)
}

// Login checks credentials and returns a fresh token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) error {
	var req models.LoginRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if ae, ok := apperr.As(err); ok && ae.Code == apperr.CodeNotFound {
			h.verifyDecoy(r.Context(), req.Password)
			return ErrInvalidCredentials
		}
		return err
	}

	ok, err := h.hasher.Verify(r.Context(), user.PasswordHash, req.Password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	return h.writeToken(w, http.StatusOK, user)
}

// verifyDecoy spends one bcrypt comparison on an unknown email so it takes as
// long as a wrong password for a real account.
func (h *Handler) verifyDecoy(ctx context.Context, password string) {
	h.decoyOnce.Do(func() {
		digest, err := h.hasher.Hash(context.WithoutCancel(ctx), "socialgate-login-decoy")
		if err != nil {
			slog.Warn("Login decoy hash failed", "error", err)
			return
		}
		h.decoy = digest
	})
	if h.decoy == "" {
		return
	}
	_, _ = h.hasher.Verify(ctx, h.decoy, password)
}

// Me returns the currently authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) error {
	id, ok := h.identity(r.Context())
	if !ok {
		return ErrTokenMissing
	}

	user, err := h.users.GetUserByID(r.Context(), id.ID)
	if err != nil {
		if ae, ok := apperr.As(err); ok && ae.Code == apperr.CodeNotFound {
			return apperr.NotFound("User not found").Wrap(err)
		}
		return err
	}

	writeJSON(w, http.StatusOK, user)
	return nil
}

func (h *Handler) writeToken(w http.ResponseWriter, status int, user *models.User) error {
	ttl := h.tokens.TTL()
	token, err := h.tokens.Issue(Identity{ID: user.ID, Email: user.Email, Username: user.Username}, ttl)
	if err != nil {
		return apperr.Internal(err)
	}
	writeJSON(w, status, models.AuthResponse{
		User:      user,
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: time.Now().Add(ttl).UTC(),
	})
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
