// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrWrongPurpose    = errors.New("token used for the wrong purpose")
	ErrSessionMismatch = errors.New("token belongs to another session")
)

type Verifier struct {
	pub    *rsa.PublicKey
	parser *jwt.Parser
}

func NewVerifier(pub *rsa.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		pub: pub,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}
}

// Verify checks signature, issuer, audience and expiry and returns the claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if v.pub == nil {
		return nil, fmt.Errorf("jwt verifier has nil public key")
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

// VerifyAccessToken accepts only access tokens.
func (v *Verifier) VerifyAccessToken(tokenString string) (*Claims, error) {
	return v.verifyPurpose(tokenString, PurposeAccess)
}

// VerifyRefreshToken accepts only a refresh token issued for sessionID.
func (v *Verifier) VerifyRefreshToken(tokenString, sessionID string) (*Claims, error) {
	claims, err := v.verifyPurpose(tokenString, PurposeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}
	return claims, nil
}

func (v *Verifier) verifyPurpose(tokenString, purpose string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.SessionPurpose != purpose {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrWrongPurpose, purpose, claims.SessionPurpose)
	}
	return claims, nil
}
