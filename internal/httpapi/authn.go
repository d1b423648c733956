package httpapi

import (
	"net/http"

	"qmark.app/internal/auth"
)

// requireUser resolves the caller through the gate and stores it on the request
// context. Rejections never say which credential check failed.
func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.gate.Authenticate(r.Context(), r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}
