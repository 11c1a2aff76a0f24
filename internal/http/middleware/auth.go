package middleware

import (
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/auth"
)

// TokenParser turns a bearer token into an actor.
type TokenParser interface {
	Parse(token string) (auth.Actor, error)
}

// Authenticate requires a valid bearer token and stores the actor in the
// request context. A nil parser rejects every request.
func Authenticate(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				http.Error(w, "auth disabled", http.StatusUnauthorized)
				return
			}
			token, ok := bearer(r)
			if !ok {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			actor, err := parser.Parse(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// RequireAdmin rejects actors without the admin role. It must run after
// Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.FromContext(r.Context())
		if !ok || !actor.IsAdmin {
			apperrors.WriteJSON(w, apperrors.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearer reads the Authorization header. Browsers cannot set headers on a
// websocket upgrade, so access_token is accepted there.
func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			token := r.URL.Query().Get("access_token")
			return token, token != ""
		}
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}
