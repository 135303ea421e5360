/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/acronis/go-rpcgate/lrucache"
)

// SlidingWindowLimiter allows maxRate.Count requests per key within any window of maxRate.Duration.
type SlidingWindowLimiter struct {
	maxRate    Rate
	getLimiter func(key string) *slidingwindow.Limiter
}

// NewSlidingWindowLimiter creates a SlidingWindowLimiter.
// maxKeys bounds the number of tracked keys, the least recently used are forgotten.
// Zero maxKeys makes all requests share one window regardless of the key.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	newLimiter := func() *slidingwindow.Limiter {
		lim, _ := slidingwindow.NewLimiter(maxRate.Duration, int64(maxRate.Count),
			func() (slidingwindow.Window, slidingwindow.StopFunc) { return slidingwindow.NewLocalWindow() })
		return lim
	}
	if maxKeys == 0 {
		shared := newLimiter()
		return &SlidingWindowLimiter{maxRate: maxRate, getLimiter: func(string) *slidingwindow.Limiter { return shared }}, nil
	}
	windows, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil, lrucache.Options{})
	if err != nil {
		return nil, fmt.Errorf("new LRU cache for keys: %w", err)
	}
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		getLimiter: func(key string) *slidingwindow.Limiter {
			lim, _ := windows.GetOrAdd(key, newLimiter)
			return lim
		},
	}, nil
}

// Allow implements Limiter. The retry time is the end of the current window.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.getLimiter(key).Allow() {
		return true, 0, nil
	}
	now := time.Now()
	return false, now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now), nil
}
