package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"qmark.app/internal/audit"
	"qmark.app/internal/auth"
	"qmark.app/internal/obs"
	"qmark.app/internal/oauth"
	"qmark.app/internal/store"
)

type errorBody struct {
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{
		Error:     true,
		Message:   msg,
		RequestID: audit.RequestID(r.Context()),
	})
}

// respondError maps domain errors to HTTP statuses. Anything unrecognised is
// logged in full and answered with a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), store.ErrInvalidInput.Error()+": "))
	case errors.Is(err, oauth.ErrUnsupportedPlatform):
		writeError(w, r, http.StatusBadRequest, "unsupported platform")
	case errors.Is(err, oauth.ErrNotConfigured):
		writeError(w, r, http.StatusBadRequest, "platform is not configured")
	case errors.Is(err, oauth.ErrInvalidState):
		writeError(w, r, http.StatusBadRequest, "invalid or expired state")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, oauth.ErrExchange):
		logFailure(r, err)
		writeError(w, r, http.StatusBadGateway, "provider request failed")
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, auth.ErrUnavailable):
		logFailure(r, err)
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		logFailure(r, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func logFailure(r *http.Request, err error) {
	obs.Logger().Error("request failed",
		zap.String("request_id", audit.RequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
