// Package retry applies the bounded exponential backoff policy used for
// transient provider failures: 1s initial delay, doubled per attempt,
// capped at 10s, at most 3 attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/resumeforge/resume-ai/internal/domain"
)

const (
	initialDelay = time.Second
	maxDelay     = 10 * time.Second
	maxAttempts  = 3
)

// Do runs op, retrying only on errors classified transient by
// domain.IsRetryable. The error from an exhausted retry wraps the last
// underlying cause.
func Do[T any](ctx context.Context, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialDelay
	b.MaxInterval = maxDelay
	b.Multiplier = 2

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !domain.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxAttempts))
}
