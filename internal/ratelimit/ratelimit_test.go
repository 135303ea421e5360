/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireAllowed(t *testing.T, l Limiter, key string, want bool) time.Duration {
	t.Helper()
	allow, retryAfter, err := l.Allow(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, want, allow)
	return retryAfter
}

func TestLeakyBucketLimiter(t *testing.T) {
	l, err := NewLeakyBucketLimiter(Rate{Count: 1, Duration: time.Minute}, 1, 100)
	require.NoError(t, err)

	requireAllowed(t, l, "10.0.0.1", true)
	requireAllowed(t, l, "10.0.0.1", true) // burst
	retryAfter := requireAllowed(t, l, "10.0.0.1", false)
	require.Greater(t, retryAfter, time.Duration(0))
	require.LessOrEqual(t, retryAfter, time.Minute)

	// Keys are counted separately.
	requireAllowed(t, l, "10.0.0.2", true)
}

func TestSlidingWindowLimiter(t *testing.T) {
	t.Run("per key", func(t *testing.T) {
		l, err := NewSlidingWindowLimiter(Rate{Count: 2, Duration: time.Hour}, 100)
		require.NoError(t, err)

		requireAllowed(t, l, "a", true)
		requireAllowed(t, l, "a", true)
		retryAfter := requireAllowed(t, l, "a", false)
		require.Greater(t, retryAfter, time.Duration(0))
		require.LessOrEqual(t, retryAfter, time.Hour)
		requireAllowed(t, l, "b", true)
	})

	t.Run("shared window without max keys", func(t *testing.T) {
		l, err := NewSlidingWindowLimiter(Rate{Count: 1, Duration: time.Hour}, 0)
		require.NoError(t, err)

		requireAllowed(t, l, "a", true)
		requireAllowed(t, l, "b", false)
	})
}
