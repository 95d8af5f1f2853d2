package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by provider-issued access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Parser validates provider-issued access tokens. The provider signs them
// with a symmetric HMAC secret shared with backend deployments.
type Parser struct {
	secretKey string
}

// NewParser creates a parser for the given shared secret.
func NewParser(secretKey string) *Parser {
	return &Parser{secretKey: secretKey}
}

// ParseAccessToken validates the signature and expiry of an access token and
// extracts the subject user id and claims.
func (p *Parser) ParseAccessToken(tokenString string) (uuid.UUID, *Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(p.secretKey), nil
	})
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, nil, fmt.Errorf("access token is invalid")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("access token subject is not a user id: %w", err)
	}

	return userID, claims, nil
}

// ExpiresAt returns the expiry of a token without requiring it to still be
// valid. Used when restoring a persisted session that may need a refresh.
func (p *Parser) ExpiresAt(tokenString string) (time.Time, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}
