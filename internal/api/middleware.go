// Package api implements the Raido REST API using chi.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// RemoteUserHeader carries the authenticated username set by the front
// proxy. Raido does not authenticate users itself.
const RemoteUserHeader = "X-Remote-User"

type contextKey string

const userKey contextKey = "user"

// UserResolver looks up a username in the registry.
type UserResolver interface {
	GetUser(username string) (*models.User, error)
}

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityMiddleware resolves the X-Remote-User header to a registry
// user and stores it in the request context. Unknown or absent users
// pass through; handlers that mutate state enforce identity themselves.
func IdentityMiddleware(users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := strings.TrimSpace(r.Header.Get(RemoteUserHeader))
			if username != "" {
				user, err := users.GetUser(username)
				if err == nil {
					r = r.WithContext(context.WithValue(r.Context(), userKey, user))
				} else if !errors.Is(err, apperr.ErrNotFound) {
					writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userFrom returns the authenticated user, or nil.
func userFrom(r *http.Request) *models.User {
	user, _ := r.Context().Value(userKey).(*models.User)
	return user
}

// requireUser writes a 401 and returns nil when no user is known.
func requireUser(w http.ResponseWriter, r *http.Request) *models.User {
	user := userFrom(r)
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody("authentication required"))
		return nil
	}
	return user
}
