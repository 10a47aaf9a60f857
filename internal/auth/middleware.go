package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/redmonkez12/payflow-auth/internal/apperror"
	"github.com/redmonkez12/payflow-auth/internal/httputil"
	"github.com/redmonkez12/payflow-auth/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const UserContextKey ContextKey = "user"

// Authenticator resolves bearer tokens to accounts
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

// Middleware handles authentication for protected routes
type Middleware struct {
	authenticator Authenticator
}

func NewMiddleware(authenticator Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved user in the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			httputil.RespondAppError(w, r, err)
			return
		}

		u, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			httputil.RespondAppError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. An absent header yields an empty token and no error.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", apperror.Authorization(apperror.CodeInvalidAuthHeader, "invalid authorization header format", nil)
	}

	return token, nil
}

// GetUserFromContext returns the user stored by RequireAuth
func GetUserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*user.User)
	return u, ok
}
