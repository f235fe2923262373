package handler

import (
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/timenest/internal/auth"
	"github.com/dukerupert/timenest/internal/middleware"
	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/store"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	minPasswordLength = 8
	maxNameLength     = 50
)

var usernameRegexp = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// UserOptions tunes account handling.
type UserOptions struct {
	SessionTTL    time.Duration
	SecureCookies bool
	BcryptCost    int
}

type UserHandler struct {
	users    *store.UserStore
	sessions *store.SessionStore
	opts     UserOptions
	logger   *slog.Logger
}

func NewUserHandler(us *store.UserStore, ss *store.SessionStore, opts UserOptions, logger *slog.Logger) *UserHandler {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	return &UserHandler{users: us, sessions: ss, opts: opts, logger: logger}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		Email        string `json:"email"`
		Password     string `json:"password"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		EventsPublic *bool  `json:"events_public"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	username := strings.TrimSpace(req.Username)
	if n := utf8.RuneCountInString(username); n < minUsernameLength || n > maxUsernameLength || !usernameRegexp.MatchString(username) {
		writeError(w, http.StatusBadRequest, "username must be 3-30 letters, digits, '.', '_' or '-'")
		return
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	first, last, ok := cleanNames(req.FirstName, req.LastName)
	if !ok {
		writeError(w, http.StatusBadRequest, "names must be at most 50 characters")
		return
	}

	if existing, err := h.users.GetByUsername(username); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check username")
		return
	} else if existing != nil {
		writeError(w, http.StatusConflict, "username is taken")
		return
	}
	if existing, err := h.users.GetByEmail(email); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check email")
		return
	} else if existing != nil {
		writeError(w, http.StatusConflict, "email is already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.opts.BcryptCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	// The first account administers the instance.
	role := model.RoleUser
	if n, err := h.users.Count(); err == nil && n == 0 {
		role = model.RoleAdmin
	}

	public := true
	if req.EventsPublic != nil {
		public = *req.EventsPublic
	}

	u, err := h.users.Create(model.User{
		Username:     username,
		Email:        email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: string(hash),
		Role:         role,
		EventsPublic: public,
	})
	if err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	if !h.startSession(w, u.ID) {
		return
	}
	h.logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	writeJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.GetByLogin(strings.TrimSpace(req.Login))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up user")
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !h.startSession(w, u.ID) {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessions.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return
	}

	var req struct {
		Email        *string `json:"email"`
		FirstName    *string `json:"first_name"`
		LastName     *string `json:"last_name"`
		EventsPublic *bool   `json:"events_public"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	email, first, last, public := u.Email, u.FirstName, u.LastName, u.EventsPublic
	if req.Email != nil {
		e, ok := normalizeEmail(*req.Email)
		if !ok {
			writeError(w, http.StatusBadRequest, "a valid email is required")
			return
		}
		if !strings.EqualFold(e, u.Email) {
			existing, err := h.users.GetByEmail(e)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to check email")
				return
			}
			if existing != nil {
				writeError(w, http.StatusConflict, "email is already registered")
				return
			}
		}
		email = e
	}
	if req.FirstName != nil {
		first = *req.FirstName
	}
	if req.LastName != nil {
		last = *req.LastName
	}
	first, last, ok := cleanNames(first, last)
	if !ok {
		writeError(w, http.StatusBadRequest, "names must be at most 50 characters")
		return
	}
	if req.EventsPublic != nil {
		public = *req.EventsPublic
	}

	updated, err := h.users.UpdateProfile(u.ID, email, first, last, public)
	if err != nil {
		h.logger.Error("update profile", "error", err, "user_id", u.ID)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ChangePassword replaces the password and signs out every other session.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.users)
	if u == nil {
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)) != nil {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if utf8.RuneCountInString(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), h.opts.BcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}
	if err := h.users.UpdatePassword(u.ID, string(hash)); err != nil {
		h.logger.Error("update password", "error", err, "user_id", u.ID)
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}
	if err := h.sessions.DeleteByUserID(u.ID); err != nil {
		h.logger.Error("revoke sessions", "error", err, "user_id", u.ID)
	}
	if !h.startSession(w, u.ID) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get returns another user's public profile.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	u, err := h.users.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u.Public())
}

// SetRole changes a user's role. Administrators cannot demote themselves.
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role != model.RoleUser && req.Role != model.RoleAdmin {
		writeError(w, http.StatusBadRequest, "role must be user or admin")
		return
	}
	if id == auth.UserID(r.Context()) && req.Role != model.RoleAdmin {
		writeError(w, http.StatusBadRequest, "administrators cannot demote themselves")
		return
	}

	u, err := h.users.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := h.users.SetRole(id, req.Role); err != nil {
		h.logger.Error("set role", "error", err, "user_id", id)
		writeError(w, http.StatusInternalServerError, "failed to set role")
		return
	}
	h.logger.Info("role changed", "user_id", id, "role", req.Role, "by", auth.UserID(r.Context()))
	u.Role = req.Role
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) startSession(w http.ResponseWriter, userID int64) bool {
	sess, err := h.sessions.Create(userID, h.opts.SessionTTL)
	if err != nil {
		h.logger.Error("create session", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func (h *UserHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func normalizeEmail(s string) (string, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil || addr.Name != "" {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}

func cleanNames(first, last string) (string, string, bool) {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if utf8.RuneCountInString(first) > maxNameLength || utf8.RuneCountInString(last) > maxNameLength {
		return "", "", false
	}
	return first, last, true
}
