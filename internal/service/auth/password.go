package auth

import (
	"fmt"
	"unicode"

	xerrors "loadboard-service/internal/pkg/errors"
)

const minPasswordLength = 8

// ValidatePassword enforces the sign-up password policy: at least eight
// characters with a letter and a digit.
func ValidatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", xerrors.ErrWeakPassword, minPasswordLength)
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: must contain a letter and a digit", xerrors.ErrWeakPassword)
	}
	return nil
}
