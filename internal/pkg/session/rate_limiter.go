// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	maxSignInAttempts = 5
	signInWindow      = 15 * time.Minute
)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckSignInAttempt counts an attempt for email and reports whether it is
// still allowed, plus how many remain in the window.
func (r *RateLimiter) CheckSignInAttempt(ctx context.Context, email string) (bool, int64, error) {
	key := r.signInKey(email)

	// INCR and EXPIRE NX run atomically, so the counter can never be left
	// without a TTL. NX keeps the window anchored at the first attempt.
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, signInWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, redisError(err, "increment sign-in attempts")
	}
	count := incr.Val()

	remaining := maxSignInAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= maxSignInAttempts, remaining, nil
}

// ResetSignInAttempts clears the counter after a successful sign-in
func (r *RateLimiter) ResetSignInAttempts(ctx context.Context, email string) error {
	return r.client.Del(ctx, r.signInKey(email)).Err()
}

func (r *RateLimiter) signInKey(email string) string {
	return fmt.Sprintf("ratelimit:signin:%s", strings.ToLower(email))
}
