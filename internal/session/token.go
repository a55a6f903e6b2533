package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
)

// TokenManager issues and verifies the bearer tokens handed to API
// clients after sign-in. Tokens are HS256 signed and carry the principal
// id as subject and the email as a private claim.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *TokenManager) Issue(p core.Principal) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) Verify(tokenString string) (core.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return core.Principal{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || claims.Subject == "" {
		return core.Principal{}, fmt.Errorf("token has no subject")
	}
	return core.Principal{ID: claims.Subject, Email: claims.Email}, nil
}
