package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
)

const userKey contextKey = "user"

// UserLookup resolves a bearer API key to the user who holds it. Satisfied
// by *agentregistry.Registry in production and a fake in tests.
type UserLookup interface {
	UserByAPIKey(key string) (*domain.User, error)
}

// Auth authenticates requests by the opaque API key in the Authorization
// header ("Bearer <key>"). The key is never logged; lookup hashes it and
// compares in constant time inside lookup.UserByAPIKey.
func Auth(lookup UserLookup) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			key, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || key == "" {
				writeAuthError(w, apperr.New(apperr.Unauthorized, "missing bearer token"))
				return
			}

			user, err := lookup.UserByAPIKey(key)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	http.Error(w, string(apperr.KindOf(err)), apperr.HTTPStatus(err))
}

// GetUser extracts the authenticated user from context.
func GetUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok
}
