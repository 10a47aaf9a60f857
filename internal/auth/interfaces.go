package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/payflow-auth/internal/user"
)

// TokenService defines the interface for token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	CreateToken(userID uuid.UUID, email string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// UserStore is the credential store the service depends on
type UserStore interface {
	FindByEmail(ctx context.Context, email string, opts ...user.FindOption) (*user.User, error)
	FindByID(ctx context.Context, id uuid.UUID, opts ...user.FindOption) (*user.User, error)
	Create(ctx context.Context, name, email, passwordHash string) (*user.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// Token formats accepted by NewTokenService
const (
	TokenFormatPaseto = "paseto"
	TokenFormatJWT    = "jwt"
)

// NewTokenService builds the issuer for a configured format. key is the
// PASETO symmetric key or the JWT secret.
func NewTokenService(format string, key []byte, now func() time.Time) (TokenService, error) {
	switch format {
	case TokenFormatPaseto:
		svc, err := NewPasetoService(key, now)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case TokenFormatJWT:
		svc, err := NewJWTService(key, now)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown token format %q", format)
	}
}
