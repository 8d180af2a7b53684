package xerrors

import (
	"errors"
	"fmt"
)

// Session, profile and billing errors surfaced to callers.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountExists       = errors.New("account already exists")
	ErrWeakPassword        = errors.New("password too weak")
	ErrNetwork             = errors.New("network error")
	ErrProfileWriteFailed  = errors.New("profile write failed")
	ErrNotFound            = errors.New("resource not found")
	ErrTimeout             = errors.New("operation timed out")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrUserCancelled       = errors.New("purchase cancelled by user")
	ErrPurchaseFailed      = errors.New("purchase failed")
	ErrNotSignedIn         = errors.New("not signed in")
	ErrEntitlementPending  = errors.New("entitlement not yet reflected in profile")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTooManyAttempts     = errors.New("too many sign-in attempts")
)

// SignUpError is returned when the identity account was created but the
// profile record was not. UserID identifies the orphaned identity so the
// profile step alone can be retried.
type SignUpError struct {
	UserID string
	Err    error
}

func (e *SignUpError) Error() string {
	return fmt.Sprintf("%s for user %s: %v", ErrProfileWriteFailed, e.UserID, e.Err)
}

func (e *SignUpError) Unwrap() []error {
	return []error{ErrProfileWriteFailed, e.Err}
}

// IsRetryable reports whether err is transient (network or timeout).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}
