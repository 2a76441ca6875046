package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/models"
)

const minPasswordLen = 8

var errBadCredentials = errors.New("invalid credentials")

// UserStore defines the interface for user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, institution, hashedPw string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Sessions opens and closes login sessions. Implemented by SessionStore.
type Sessions interface {
	Create(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, sid string) error
}

// Handler serves registration, login and the current profile.
type Handler struct {
	users    UserStore
	sessions Sessions
	log      *zap.Logger
}

func NewHandler(users UserStore, sessions Sessions, log *zap.Logger) *Handler {
	return &Handler{users: users, sessions: sessions, log: log}
}

// profile is the /me payload: the user plus the restricted artifacts the
// user may read.
type profile struct {
	*models.User
	Grants []string `json:"grants"`
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := apperr.Status(err)
	msg := err.Error()
	switch {
	case errors.Is(err, errBadCredentials):
		status = http.StatusUnauthorized
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	case status == http.StatusInternalServerError:
		h.log.Error(op, zap.Error(err))
		msg = "internal error"
	}
	respond(w, status, map[string]string{"error": msg})
}

func setSessionCookie(w http.ResponseWriter, sid string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// cleanRegistration trims the request, lowercases the email and checks
// the minimum account requirements.
func cleanRegistration(req models.RegisterRequest) (models.RegisterRequest, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Institution = strings.TrimSpace(req.Institution)
	switch {
	case req.Username == "" || req.Email == "" || req.Password == "":
		return req, apperr.Validation("username, email and password are required")
	case len(req.Password) < minPasswordLen:
		return req, apperr.Validation("password must be at least %d characters", minPasswordLen)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return req, apperr.Validation("invalid email address %q", req.Email)
	}
	return req, nil
}

// Register creates an account. The institution given here decides which
// institutional artifacts the user can read.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "register", apperr.Validation("invalid request body"))
		return
	}
	req, err := cleanRegistration(req)
	if err != nil {
		h.fail(w, "register", err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.fail(w, "hash password", err)
		return
	}
	user, err := h.users.CreateUser(r.Context(), req.Username, req.Email, req.Institution, string(hashed))
	if err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			err = apperr.Unavailable("create user", err)
		}
		h.fail(w, "create user", err)
		return
	}
	h.log.Info("user registered", zap.String("user_id", user.ID), zap.String("institution", user.Institution))
	respond(w, http.StatusCreated, user)
}

// Login checks the password and opens a session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "login", apperr.Validation("invalid request body"))
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		h.log.Warn("login lookup failed", zap.Error(err))
	}
	if err != nil || user == nil ||
		bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		h.fail(w, "login", errBadCredentials)
		return
	}

	sid, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.fail(w, "create session", apperr.Unavailable("create session", err))
		return
	}
	setSessionCookie(w, sid, int(SessionTTL/time.Second))
	respond(w, http.StatusOK, user)
}

// Logout drops the session server-side and expires the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.log.Warn("delete session", zap.Error(err))
		}
	}
	setSessionCookie(w, "", -1)
	respond(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	if userID == "" {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		h.fail(w, "load user", err)
		return
	}
	respond(w, http.StatusOK, profile{User: user, Grants: ViewerFrom(r.Context()).Grants})
}
