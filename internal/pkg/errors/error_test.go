package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignUpErrorMatchesBothCauses(t *testing.T) {
	err := error(&SignUpError{UserID: "u-1", Err: ErrNetwork})

	assert.True(t, errors.Is(err, ErrProfileWriteFailed))
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.False(t, errors.Is(err, ErrAccountExists))
	assert.Contains(t, err.Error(), "u-1")

	var su *SignUpError
	wrapped := fmt.Errorf("sign up: %w", err)
	assert.True(t, errors.As(wrapped, &su))
	assert.Equal(t, "u-1", su.UserID)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrNetwork))
	assert.True(t, IsRetryable(fmt.Errorf("get profile: %w", ErrTimeout)))
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(nil))
}
