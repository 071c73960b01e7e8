package connector

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/syssam/dsr"
	dsql "github.com/syssam/dsr/dialect/sql"
)

// IsTransient reports whether a connector call may succeed when retried:
// transient database errors, network errors and timeouts of the document
// store, and client errors with a 5xx, 408 or 429 status.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce *dsr.ClientError
	if errors.As(err, &ce) {
		return ce.Temporary()
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	return dsql.IsTransient(err)
}

// Retry calls fn until it succeeds, fails with an error that is not
// transient, or attempts calls were made. The delay before the n-th retry
// is delay * 2^(n-1), capped at a minute unless delay is longer. Retry returns
// the number of calls made and the last error.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		calls int
		last  error
	)
	op := func() error {
		calls++
		if last = fn(ctx); last != nil && !IsTransient(last) {
			return backoff.Permanent(last)
		}
		return last
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(delay), uint64(attempts-1)), ctx)
	err := backoff.Retry(op, b)
	if err != nil && last != nil && !errors.Is(err, last) {
		// Canceled while waiting for the next attempt.
		err = errors.Join(last, err)
	}
	return calls, err
}

func newBackOff(delay time.Duration) backoff.BackOff {
	if delay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = max(delay, backoff.DefaultMaxInterval)
	b.MaxElapsedTime = 0
	return b
}
