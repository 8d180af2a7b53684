// internal/service/session/ports.go
package session

import (
	"context"

	"loadboard-service/internal/domain/auth"
)

// IdentityProvider is the external authentication backend.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string, attrs map[string]string) (string, error)
	SignInWithPassword(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	CurrentSession(ctx context.Context) (*auth.Session, error)
	// OnSessionChange delivers events in chronological order until the
	// returned unsubscribe func is called.
	OnSessionChange(fn func(auth.SessionEvent)) (unsubscribe func())
}

// ProfileStore is the durable profile backend.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*auth.Profile, error)
	UpsertProfile(ctx context.Context, profile *auth.Profile) error
	// CreateProfile inserts a new row and fails with
	// xerrors.ErrConstraintViolation if one already exists for the user.
	CreateProfile(ctx context.Context, profile *auth.Profile) error
}

// IdentityLookup resolves the registered email of an identity account.
// Providers that implement it let RetryProfileCreation reject user ids
// that do not belong to the caller's email.
type IdentityLookup interface {
	IdentityEmail(ctx context.Context, userID string) (string, error)
}
