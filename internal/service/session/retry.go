package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loadboard-service/internal/domain/auth"
	xerrors "loadboard-service/internal/pkg/errors"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// errStale stops a retry loop once the session it was working for is gone.
var errStale = errors.New("session superseded")

func permanent(err error) error {
	return backoff.Permanent(err)
}

// call runs fn under the operation timeout and records its latency.
// A deadline is reported as ErrTimeout rather than a network failure.
func (c *Coordinator) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OperationTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	c.metrics.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	return contextError(ctx, err)
}

// retry runs op with exponential backoff until it succeeds, returns a
// permanent error, or the attempt budget is spent.
func (c *Coordinator) retry(ctx context.Context, operation string, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.RetryBaseDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = c.opts.RetryBaseDelay << 4
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.opts.RetryAttempts-1)), ctx)

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		c.metrics.FetchRetries.WithLabelValues(operation).Inc()
		c.logger.Debug("retrying after transient failure",
			zap.String("operation", operation),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	return contextError(ctx, err)
}

// fetchProfile reads a profile, retrying transient failures.
func (c *Coordinator) fetchProfile(ctx context.Context, userID, operation string) (*auth.Profile, error) {
	var profile *auth.Profile
	err := c.retry(ctx, operation, func() error {
		p, err := c.fetchOnce(ctx, userID, operation)
		if err != nil {
			if xerrors.IsRetryable(err) {
				return err
			}
			return permanent(err)
		}
		profile = p
		return nil
	})
	return profile, err
}

func (c *Coordinator) fetchOnce(ctx context.Context, userID, operation string) (*auth.Profile, error) {
	var profile *auth.Profile
	err := c.call(ctx, "get_profile", func(ctx context.Context) error {
		var err error
		profile, err = c.profiles.GetProfile(ctx, userID)
		return err
	})

	outcome := "ok"
	switch {
	case err == nil && profile == nil:
		err = xerrors.ErrNotFound
		outcome = "not_found"
	case errors.Is(err, xerrors.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, xerrors.ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	c.metrics.ProfileFetches.WithLabelValues(operation, outcome).Inc()
	return profile, err
}

func contextError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, xerrors.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", xerrors.ErrTimeout, err)
	}
	return err
}
