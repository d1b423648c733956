package httpapi

import (
	"net/http"
	"strings"
	"time"

	"qmark.app/internal/audit"
	"qmark.app/internal/auth"
	"qmark.app/internal/secret"
	"qmark.app/internal/store"
)

// bcrypt ignores input past 72 bytes.
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

type registerRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	User      store.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

func (a *API) currentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUserOf(r))
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Password) < minPasswordLen || len(req.Password) > maxPasswordLen {
		writeError(w, r, http.StatusBadRequest, "password must be between 8 and 72 characters")
		return
	}
	hash, err := secret.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	user, err := a.store.CreateUser(r.Context(), store.User{
		Email:        &email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.registered", map[string]any{"user_id": user.ID})
	a.signIn(w, r, user, http.StatusCreated)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, ok, err := a.store.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !ok || user.PasswordHash == "" || !secret.VerifyPassword(req.Password, user.PasswordHash) {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", nil)
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": user.ID})
	a.signIn(w, r, user, http.StatusOK)
}

// signIn starts a cookie session and issues a bearer token for user.
func (a *API) signIn(w http.ResponseWriter, r *http.Request, user store.User, code int) {
	session, sessionExpires, err := a.gate.StartSession(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	token, expiresAt, err := a.gate.IssueToken(user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	http.SetCookie(w, auth.NewSessionCookie(session, sessionExpires, a.cfg.Security.CookieSecure))
	writeJSON(w, code, tokenResponse{User: user, Token: token, ExpiresAt: expiresAt})
}

// logout ends the cookie session, if any. It succeeds for anonymous callers too.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(auth.SessionCookie); err == nil {
		if err := a.gate.EndSession(r.Context(), c.Value); err != nil {
			respondError(w, r, err)
			return
		}
	}
	http.SetCookie(w, auth.ClearSessionCookie(a.cfg.Security.CookieSecure))
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *API) deleteAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUserOf(r)
	deleted, err := a.store.DeleteUser(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !deleted {
		respondError(w, r, store.ErrNotFound)
		return
	}
	http.SetCookie(w, auth.ClearSessionCookie(a.cfg.Security.CookieSecure))
	_ = audit.LogEvent(r.Context(), "auth.account.deleted", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
