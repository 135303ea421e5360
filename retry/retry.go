/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs an operation again according to a backoff policy.
// The gateway uses it for restarting a failed dispatcher loop and for waiting until the database answers pings.
// Backend calls are never retried.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable tells a transient error from a permanent one.
type IsRetryable func(error) bool

// RetryableFunc is an operation that may be attempted several times.
type RetryableFunc func(ctx context.Context) error

// Policy creates a fresh backoff for every DoWithRetry call.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry calls fn until it succeeds, the policy gives up or ctx is done.
// isRetryable may be nil, then every error is retried. notify (may be nil) is called before each new attempt.
// The last error of fn is returned.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	return DoWithBackOff(ctx, p.NewBackOff(), isRetryable, notify, fn)
}

// DoWithBackOff is like DoWithRetry but uses b directly.
// fn may call b.Reset() to restore the whole attempt budget, e.g. after it has made progress.
func DoWithBackOff(ctx context.Context, b backoff.BackOff, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	bctx := backoff.WithContext(b, ctx)
	op := func() error {
		err := fn(bctx.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, bctx, notify)
}

// ExponentialBackoffPolicy retries up to maxAttempts times with delays growing by the factor of 1.5.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxAttempts     int
}

// NewExponentialBackoffPolicy creates a new ExponentialBackoffPolicy. Zero maxRetryAttempts means no limit.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval, maxRetryAttempts}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.MaxElapsedTime = 0
	return withMaxRetries(eb, p.maxAttempts)
}

// ConstantBackoffPolicy retries up to maxAttempts times with a fixed delay.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy creates a new ConstantBackoffPolicy. Zero maxRetryAttempts means no limit.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxRetryAttempts}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.interval), p.maxAttempts)
}

func withMaxRetries(b backoff.BackOff, maxAttempts int) backoff.BackOff {
	if maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxAttempts))
	}
	b.Reset()
	return b
}
