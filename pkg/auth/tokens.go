// Package auth issues and validates session tokens and exchanges verified
// service-account identity tokens for them.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agora-discourse/agora/pkg/config"
)

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	IsSystem bool   `json:"is_system,omitempty"`
}

// TokenIssuer signs and validates HS256 session tokens.
type TokenIssuer struct {
	secret   []byte
	audience string
	ttl      time.Duration
}

// NewTokenIssuer creates a token issuer from auth configuration.
func NewTokenIssuer(cfg *config.AuthConfig) *TokenIssuer {
	if cfg.JWTSecret == "" {
		panic("JWT secret is required")
	}
	return &TokenIssuer{
		secret:   []byte(cfg.JWTSecret),
		audience: cfg.JWTAudience,
		ttl:      cfg.SessionTTL,
	}
}

// Issue signs a session token for userID.
func (t *TokenIssuer) Issue(userID, email string, isSystem bool) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Email:    email,
		IsSystem: isSystem,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Validate parses a session token and returns its claims.
func (t *TokenIssuer) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("validating session token: %w", err)
	}
	return claims, nil
}
