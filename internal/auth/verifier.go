package auth

import (
	"errors"
	"fmt"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/pkg/jwt"
)

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

// JWTVerifier verifies HS256 tokens issued with the shared secret.
type JWTVerifier struct {
	manager *jwt.Manager
}

func NewJWTVerifier(manager *jwt.Manager) *JWTVerifier {
	return &JWTVerifier{manager: manager}
}

// Verify returns the identity carried by token. Every failure wraps
// domain.ErrUnauthenticated.
func (v *JWTVerifier) Verify(token string) (domain.Identity, error) {
	claims, err := v.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: claims.UserID, Role: domain.Role(claims.Role)}, nil
}

// ValidateToken validates the token and its claim contents. It satisfies
// middleware.TokenValidator so REST and WebSocket share the same rules.
func (v *JWTVerifier) ValidateToken(token string) (*jwt.Claims, error) {
	claims, err := v.manager.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if !domain.ValidUserID(claims.UserID) {
		return nil, fmt.Errorf("%w: malformed subject", domain.ErrUnauthenticated)
	}
	if !domain.Role(claims.Role).Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthenticated, claims.Role)
	}
	return claims, nil
}
