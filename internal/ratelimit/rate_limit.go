/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"
)

// Rate is a number of requests allowed per Duration.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter decides whether one more request under key may pass now.
// A rejected request may be retried after retryAfter.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}
