// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
)

// Claims carried by identity-provider session tokens. Access and refresh
// tokens of one session share SessionID.
type Claims struct {
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id"`
	Email          string `json:"email,omitempty"`
	SessionPurpose string `json:"session_purpose"`
	jwt.RegisteredClaims
}
