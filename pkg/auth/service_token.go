package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// ServiceTokenClaims identify the panel component calling the quota API and
// what it is allowed to do.
type ServiceTokenClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

type ServiceTokenManager struct {
	signingKey []byte
	ttl        time.Duration
}

func NewServiceTokenManager(signingKey []byte, ttl time.Duration) *ServiceTokenManager {
	return &ServiceTokenManager{signingKey: signingKey, ttl: ttl}
}

func (m *ServiceTokenManager) GenerateToken(subject, scope string) (string, error) {
	claims := ServiceTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subject,
			Issuer:    "quotad",
		},
		Scope: scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

func (m *ServiceTokenManager) ValidateToken(tokenString string) (*ServiceTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ServiceTokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (c *ServiceTokenClaims) HasScope(required string) bool {
	scopes := strings.Split(c.Scope, ",")
	for _, scope := range scopes {
		if scope == required {
			return true
		}
	}
	return false
}
