/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/txn"
)

// InitFunc performs the one-time system initialization.
// It returns the transactional resource provider, or nil when the gateway runs without one.
type InitFunc func(ctx context.Context) (txn.Provider, error)

// LifecycleState is the initialization state of the gateway.
type LifecycleState int32

// Lifecycle states.
const (
	StateUninitialized LifecycleState = iota
	StateInitializing
	StateReady
)

func (s LifecycleState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Lifecycle runs InitFunc once for all requests.
// Requests arriving during initialization wait for it and share its result.
// A failed initialization leaves the state Uninitialized so the next request tries again.
type Lifecycle struct {
	init     InitFunc
	timeout  time.Duration
	logger   log.FieldLogger
	attempts *atomic.Int32

	mu       sync.Mutex
	state    LifecycleState
	provider txn.Provider
	attempt  chan struct{} // closed when the running attempt ends
	lastErr  error
}

// NewLifecycle creates a Lifecycle. A nil init makes the gateway ready without a transactional resource.
// A positive timeout bounds each initialization attempt.
func NewLifecycle(init InitFunc, timeout time.Duration, logger log.FieldLogger) *Lifecycle {
	if init == nil {
		init = func(context.Context) (txn.Provider, error) { return nil, nil }
	}
	return &Lifecycle{init: init, timeout: timeout, logger: logger, attempts: atomic.NewInt32(0)}
}

// State returns the current state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Attempts returns how many times initialization has been started.
func (l *Lifecycle) Attempts() int {
	return int(l.attempts.Load())
}

// Ensure returns once the gateway is ready, initializing it if needed.
// It returns the transactional resource provider produced by initialization.
func (l *Lifecycle) Ensure(ctx context.Context) (txn.Provider, error) {
	l.mu.Lock()
	for {
		switch l.state {
		case StateReady:
			p := l.provider
			l.mu.Unlock()
			return p, nil

		case StateInitializing:
			wait := l.attempt
			l.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			l.mu.Lock()
			if l.state == StateUninitialized && l.lastErr != nil {
				// The attempt we waited for has failed; report it instead of starting another one.
				err := l.lastErr
				l.mu.Unlock()
				return nil, err
			}

		default:
			l.state = StateInitializing
			l.attempt = make(chan struct{})
			l.mu.Unlock()

			p, err := l.run(ctx)

			l.mu.Lock()
			if err != nil {
				l.state, l.lastErr = StateUninitialized, err
			} else {
				l.state, l.provider, l.lastErr = StateReady, p, nil
			}
			close(l.attempt)
			l.mu.Unlock()
			return p, err
		}
	}
}

func (l *Lifecycle) run(ctx context.Context) (p txn.Provider, err error) {
	n := l.attempts.Inc()
	l.logger.Info("system initialization started", log.Int("attempt", int(n)))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialization panicked: %v", r)
		}
		if err != nil {
			l.logger.Error("system initialization failed", log.Error(err), log.Int("attempt", int(n)))
			return
		}
		l.logger.Info("system initialization completed", log.Bool("transactional", p != nil))
	}()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.init(ctx)
}
