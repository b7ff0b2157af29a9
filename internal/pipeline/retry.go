package pipeline

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// Fetch concurrency ceilings. Plain HTTP fetches are cheap; headless
// browser sessions are not.
const (
	DefaultFetchConcurrency   = 50
	DefaultBrowserConcurrency = 5
)

// fetchAttempts caps retries for one item. A single item exhausting its
// retries is recorded as failed and never aborts the stage.
const fetchAttempts = 4

// NewFetchLimiter returns a limiter for outbound fetches, n per second
// with a same-sized burst.
func NewFetchLimiter(n int) *rate.Limiter {
	if n <= 0 {
		n = DefaultFetchConcurrency
	}
	return rate.NewLimiter(rate.Limit(n), n)
}

// WithRetry runs fn under capped exponential backoff with jitter.
func WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(500 * time.Millisecond)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(fetchAttempts, backoff)
	return retry.Do(ctx, backoff, fn)
}

// Retryable marks an error as transient for WithRetry.
func Retryable(err error) error {
	return retry.RetryableError(err)
}
