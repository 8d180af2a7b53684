// internal/pkg/session/types.go
package session

import (
	"time"

	"loadboard-service/internal/domain/auth"
)

// SessionData is the stored form of one identity-provider session.
// ExpiresAt bounds the session itself; AccessExpiresAt only the current
// access token.
type SessionData struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	DeviceID        string    `json:"device_id"`
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	LoginAt         time.Time `json:"login_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// ToSession converts to the domain session handed to the coordinator.
func (d *SessionData) ToSession() *auth.Session {
	if d == nil {
		return nil
	}
	return &auth.Session{
		ID:           d.ID,
		UserID:       d.UserID,
		Email:        d.Email,
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		IssuedAt:     d.LastActivityAt,
		ExpiresAt:    d.AccessExpiresAt,
	}
}

// FromSession converts a domain session back to its stored form.
func FromSession(s *auth.Session) *SessionData {
	if s == nil {
		return nil
	}
	return &SessionData{
		ID:              s.ID,
		UserID:          s.UserID,
		Email:           s.Email,
		AccessToken:     s.AccessToken,
		RefreshToken:    s.RefreshToken,
		AccessExpiresAt: s.ExpiresAt,
		LastActivityAt:  s.IssuedAt,
	}
}

// eventMessage is the pub/sub form of a session event. Unlike the domain
// session it carries the tokens.
type eventMessage struct {
	ID         string                `json:"id"`
	Type       auth.SessionEventType `json:"type"`
	Session    *SessionData          `json:"session,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}
