// Package api implements the medrec REST API using chi.
package api

import (
	"context"
	"net/http"

	"github.com/starford/medrec/internal/access"
)

// Authenticator checks a username and password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*access.User, bool)
}

type ctxKey struct{}

// UserFrom returns the user attached by AuthMiddleware.
func UserFrom(ctx context.Context) (*access.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*access.User)
	return u, ok
}

// WithUser attaches u to ctx.
func WithUser(ctx context.Context, u *access.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// AuthMiddleware returns middleware that validates HTTP Basic credentials
// against the credential store on every request. Unknown users and wrong
// passwords get the same 401 response.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}
			u, ok := auth.Authenticate(r.Context(), username, password)
			if !ok {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="medrec", charset="UTF-8"`)
	writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
}
