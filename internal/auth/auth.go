// Package auth resolves caller identity at the request boundary. Identity
// is established by an external auth service sitting in front of this one;
// by the time a request arrives here its identity headers are trusted.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/phroun/faderbank/internal/models"
)

// contextKey is a custom type for context keys.
type contextKey string

const userContextKey contextKey = "user"

// Headers set by the upstream auth proxy.
const (
	HeaderUserID      = "X-Forwarded-User"
	HeaderLoginName   = "X-Forwarded-Login"
	HeaderDisplayName = "X-Forwarded-Name"
)

// Authenticator extracts the resolved identity from requests.
type Authenticator struct{}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator() *Authenticator {
	return &Authenticator{}
}

// GetUser extracts the caller identity from an HTTP request.
func (a *Authenticator) GetUser(r *http.Request) (*models.User, error) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		return nil, fmt.Errorf("no identity on request")
	}

	user := &models.User{
		ID:          id,
		LoginName:   r.Header.Get(HeaderLoginName),
		DisplayName: r.Header.Get(HeaderDisplayName),
	}
	if user.DisplayName == "" {
		user.DisplayName = user.LoginName
	}
	if user.DisplayName == "" {
		user.DisplayName = user.ID
	}
	return user, nil
}

// Middleware wraps an HTTP handler and adds the user to the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.GetUser(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext retrieves the user from the request context.
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
