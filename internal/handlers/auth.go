package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/auth"
	"github.com/shubham07069/chatgod/internal/email"
	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/store"
)

// codeTTL bounds how long an emailed code stays valid.
const codeTTL = 15 * time.Minute

// Presence records a user going online or offline.
type Presence interface {
	SetPresence(ctx context.Context, userID int, online bool) error
}

type AuthHandler struct {
	Store    store.UserStore
	Sessions *auth.Sessions
	Mail     email.Sender
	Presence Presence
	Logger   *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type RegisterRequest struct {
	Code           string `json:"code" validate:"required,len=6"`
	Username       string `json:"username" validate:"required,min=3,max=32"`
	PublicUsername string `json:"public_username" validate:"omitempty,min=3,max=32"`
	Password       string `json:"password" validate:"required,min=8,max=72"`
}

type ResetCodeRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Code        string `json:"code" validate:"required,len=6"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type ProfileRequest struct {
	PublicUsername string `json:"public_username" validate:"omitempty,min=3,max=32"`
	ProfilePic     string `json:"profile_pic" validate:"omitempty,max=256"`
}

func (h *AuthHandler) log() *zap.Logger { return logging.OrNop(h.Logger) }

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// RequestRegistrationCode emails a verification code to an address that is
// not yet registered.
func (h *AuthHandler) RequestRegistrationCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))

	_, err := h.Store.GetUserByEmail(r.Context(), addr)
	switch {
	case err == nil:
		writeError(w, h.log(), r, fmt.Errorf("email %w", apperr.ErrConflict))
		return
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, h.log(), r, err)
		return
	}

	code, err := auth.NewCode()
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if err := email.SendVerificationCode(r.Context(), h.Mail, addr, addr, code); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	pending := auth.Pending{Code: code, Email: addr, ExpiresAt: h.now().Add(codeTTL)}
	if err := h.Sessions.SetPending(w, r, auth.PendingRegistration, pending); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

// Register creates the account for the verified email.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	pending, ok := h.Sessions.Pending(r, auth.PendingRegistration, h.now())
	if !ok {
		writeError(w, h.log(), r, apperr.Validationf("no pending email verification"))
		return
	}
	if !auth.CodesEqual(pending.Code, req.Code) {
		writeError(w, h.log(), r, apperr.Validationf("invalid verification code"))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	user := &models.User{
		Username:       strings.TrimSpace(req.Username),
		PublicUsername: strings.TrimSpace(req.PublicUsername),
		Email:          pending.Email,
		PasswordHash:   string(hashedPassword),
	}
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = fmt.Errorf("username or public username %w", apperr.ErrConflict)
		}
		writeError(w, h.log(), r, err)
		return
	}
	if err := h.Sessions.ClearPending(w, r, auth.PendingRegistration); err != nil {
		h.log().Warn("Failed to clear pending registration", zap.Error(err))
	}
	h.log().Info("User registered", zap.Int("user_id", user.ID), zap.String("username", user.Username))
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := decode(r, &creds); err != nil {
		writeError(w, h.log(), r, err)
		return
	}

	user, err := h.Store.GetUserByUsername(r.Context(), creds.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeError(w, h.log(), r, err)
			return
		}
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if _, err := h.Sessions.Login(w, r, user.ID, user.Username); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if err := h.Presence.SetPresence(r.Context(), user.ID, true); err != nil {
		h.log().Warn("Failed to mark user online", zap.Int("user_id", user.ID), zap.Error(err))
	}
	user.IsOnline = true
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if err := h.Presence.SetPresence(r.Context(), ac.UserID, false); err != nil {
		h.log().Warn("Failed to mark user offline", zap.Int("user_id", ac.UserID), zap.Error(err))
	}
	if err := h.Sessions.Logout(w, r); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ForgotUsername emails the username registered for an address.
func (h *AuthHandler) ForgotUsername(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	user, err := h.Store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFoundf("email not registered")
		}
		writeError(w, h.log(), r, err)
		return
	}
	if err := email.SendUsernameReminder(r.Context(), h.Mail, user.Email, user.Username); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// RequestPasswordReset emails a reset code when username and email match.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetCodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	user, err := h.Store.GetUserByUsername(r.Context(), req.Username)
	if err == nil && !strings.EqualFold(user.Email, strings.TrimSpace(req.Email)) {
		err = store.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFoundf("username or email not found")
		}
		writeError(w, h.log(), r, err)
		return
	}

	code, err := auth.NewCode()
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if err := email.SendPasswordResetCode(r.Context(), h.Mail, user.Email, user.Username, code); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	pending := auth.Pending{Code: code, UserID: user.ID, ExpiresAt: h.now().Add(codeTTL)}
	if err := h.Sessions.SetPending(w, r, auth.PendingReset, pending); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	pending, ok := h.Sessions.Pending(r, auth.PendingReset, h.now())
	if !ok {
		writeError(w, h.log(), r, apperr.Validationf("no pending password reset"))
		return
	}
	if !auth.CodesEqual(pending.Code, req.Code) {
		writeError(w, h.log(), r, apperr.Validationf("invalid verification code"))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if err := h.Store.UpdatePassword(r.Context(), pending.UserID, string(hashedPassword)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFoundf("user not found")
		}
		writeError(w, h.log(), r, err)
		return
	}
	if err := h.Sessions.ClearPending(w, r, auth.PendingReset); err != nil {
		h.log().Warn("Failed to clear pending reset", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	user, err := h.Store.GetUserByID(r.Context(), ac.UserID)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile sets the public username and profile picture path. Empty
// fields are left unchanged.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	var req ProfileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	err = h.Store.UpdateProfile(r.Context(), ac.UserID, strings.TrimSpace(req.PublicUsername), strings.TrimSpace(req.ProfilePic))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = fmt.Errorf("public username %w", apperr.ErrConflict)
		}
		writeError(w, h.log(), r, err)
		return
	}
	h.Me(w, r)
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	users, err := h.Store.ListUsersExcept(r.Context(), ac.UserID)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AuthHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, []models.User{})
		return
	}

	users, err := h.Store.SearchUsers(r.Context(), query)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
