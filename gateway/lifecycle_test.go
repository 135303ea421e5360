/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-rpcgate/log/logtest"
	"github.com/acronis/go-rpcgate/txn"
)

func TestLifecycle_InitializesOnce(t *testing.T) {
	db := newFakeDB()
	runs := atomic.NewInt32(0)
	release := make(chan struct{})
	l := NewLifecycle(func(context.Context) (txn.Provider, error) {
		runs.Inc()
		<-release
		return db, nil
	}, 0, logtest.NewRecorder())
	require.Equal(t, StateUninitialized, l.State())

	const callers = 10
	var wg sync.WaitGroup
	providers := make([]txn.Provider, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := l.Ensure(context.Background())
			require.NoError(t, err)
			providers[i] = p
		}(i)
	}
	require.Eventually(t, func() bool { return l.State() == StateInitializing }, 3*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, runs.Load())
	require.Equal(t, StateReady, l.State())
	for _, p := range providers {
		require.Same(t, db, p)
	}
}

// waitObservingContext reports the first time a caller selects on Done.
type waitObservingContext struct {
	context.Context
	once    sync.Once
	waiting chan struct{}
}

func newWaitObservingContext(ctx context.Context) *waitObservingContext {
	return &waitObservingContext{Context: ctx, waiting: make(chan struct{})}
}

func (c *waitObservingContext) Done() <-chan struct{} {
	c.once.Do(func() { close(c.waiting) })
	return c.Context.Done()
}

func TestLifecycle_WaitersShareFailure(t *testing.T) {
	release := make(chan struct{})
	runs := atomic.NewInt32(0)
	l := NewLifecycle(func(context.Context) (txn.Provider, error) {
		if runs.Inc() == 1 {
			<-release
			return nil, errors.New("not yet")
		}
		return nil, nil
	}, 0, logtest.NewRecorder())

	first := make(chan error, 1)
	go func() {
		_, err := l.Ensure(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return l.State() == StateInitializing }, 3*time.Second, time.Millisecond)

	waiterCtx := newWaitObservingContext(context.Background())
	waiter := make(chan error, 1)
	go func() {
		_, err := l.Ensure(waiterCtx)
		waiter <- err
	}()
	select {
	case <-waiterCtx.waiting:
	case <-time.After(3 * time.Second):
		t.Fatal("second request did not start waiting")
	}
	close(release)

	require.EqualError(t, <-first, "not yet")
	require.EqualError(t, <-waiter, "not yet")
	require.Equal(t, StateUninitialized, l.State())

	// The next request initializes again.
	p, err := l.Ensure(context.Background())
	require.NoError(t, err)
	require.Nil(t, p)
	require.Equal(t, StateReady, l.State())
	require.Equal(t, 2, l.Attempts())
}

func TestLifecycle_WaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	l := NewLifecycle(func(context.Context) (txn.Provider, error) {
		<-release
		return nil, nil
	}, 0, logtest.NewRecorder())
	go func() { _, _ = l.Ensure(context.Background()) }()
	require.Eventually(t, func() bool { return l.State() == StateInitializing }, 3*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Ensure(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLifecycle_InitPanicAndTimeout(t *testing.T) {
	l := NewLifecycle(func(context.Context) (txn.Provider, error) {
		panic("broken init")
	}, 0, logtest.NewRecorder())
	_, err := l.Ensure(context.Background())
	require.EqualError(t, err, "initialization panicked: broken init")
	require.Equal(t, StateUninitialized, l.State())

	l = NewLifecycle(func(ctx context.Context) (txn.Provider, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 10*time.Millisecond, logtest.NewRecorder())
	_, err = l.Ensure(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
