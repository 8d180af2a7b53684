// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

type Generator struct {
	priv     *rsa.PrivateKey
	issuer   string
	audience string
	kid      string
	ttl      time.Duration
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience, kid string, ttl time.Duration) *Generator {
	return &Generator{
		priv:     priv,
		issuer:   issuer,
		audience: audience,
		kid:      kid,
		ttl:      ttl,
	}
}

// Generate signs a token for the given session and returns it with its jti
// and expiry.
func (g *Generator) Generate(userID, sessionID, email, purpose string, ttl time.Duration) (string, string, time.Time, error) {
	if g.priv == nil {
		return "", "", time.Time{}, fmt.Errorf("jwt generator has nil private key")
	}

	now := time.Now()
	jti := ulid.Make().String()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		UserID:         userID,
		SessionID:      sessionID,
		Email:          email,
		SessionPurpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   userID,
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}

	signed, err := tok.SignedString(g.priv)
	return signed, jti, expiresAt, err
}

// GenerateAccessToken generates a standard access token
func (g *Generator) GenerateAccessToken(userID, sessionID, email string) (string, time.Time, error) {
	signed, _, exp, err := g.Generate(userID, sessionID, email, PurposeAccess, g.ttl)
	return signed, exp, err
}

// GenerateRefreshToken generates a refresh token bound to the session
func (g *Generator) GenerateRefreshToken(userID, sessionID string, ttl time.Duration) (string, error) {
	signed, _, _, err := g.Generate(userID, sessionID, "", PurposeRefresh, ttl)
	return signed, err
}
