package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// ContextKeyUserID is the context key for the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
)

// Authenticator resolves a bearer credential to a user id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// BearerToken extracts the credential from the Authorization header, falling
// back to the token query parameter used by socket clients that cannot set
// headers during the handshake.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		if strings.HasPrefix(header, BearerPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// AuthenticateRequest extracts and verifies the bearer credential of r.
func AuthenticateRequest(a Authenticator, r *http.Request) (string, error) {
	token := BearerToken(r)
	if token == "" {
		return "", ErrMissingToken
	}
	return a.Authenticate(token)
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// UserIDFromContext returns the authenticated user id stored in ctx.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(ContextKeyUserID).(string)
	return userID, ok && userID != ""
}
