// internal/domain/auth/entity.go
package auth

import (
	"time"
)

// Identity is a credential record held by the local identity provider.
type Identity struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     string    `json:"full_name" db:"full_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Session is one authenticated identity-provider session. ID stays the same
// across token refreshes; a new sign-in always yields a new ID. Tokens never
// appear in its JSON form.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired reports whether the session's access token has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a copy safe to hand to consumers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Profile is the durable user record keyed by the identity's user id.
type Profile struct {
	UserID        string     `json:"user_id" db:"user_id"`
	Email         string     `json:"email" db:"email"`
	FullName      string     `json:"full_name" db:"full_name"`
	Phone         *string    `json:"phone,omitempty" db:"phone"`
	IsPlusMember  bool       `json:"is_plus_member" db:"is_plus_member"`
	PlusExpiresAt *time.Time `json:"plus_expires_at,omitempty" db:"plus_expires_at"`
	AvatarURL     *string    `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Phone != nil {
		v := *p.Phone
		c.Phone = &v
	}
	if p.PlusExpiresAt != nil {
		v := *p.PlusExpiresAt
		c.PlusExpiresAt = &v
	}
	if p.AvatarURL != nil {
		v := *p.AvatarURL
		c.AvatarURL = &v
	}
	return &c
}

// EntitlementActive derives PLUS access from the profile at now. A nil
// profile is never entitled.
func EntitlementActive(p *Profile, now time.Time) bool {
	if p == nil || !p.IsPlusMember {
		return false
	}
	return p.PlusExpiresAt == nil || p.PlusExpiresAt.After(now)
}

// SessionEventType enumerates identity-provider session changes.
type SessionEventType string

const (
	EventSignedIn       SessionEventType = "signed_in"
	EventSignedOut      SessionEventType = "signed_out"
	EventTokenRefreshed SessionEventType = "token_refreshed"
)

// SessionEvent is delivered by the identity provider on every session change.
// Session is nil for EventSignedOut.
type SessionEvent struct {
	ID         string           `json:"id"`
	Type       SessionEventType `json:"type"`
	Session    *Session         `json:"session,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
