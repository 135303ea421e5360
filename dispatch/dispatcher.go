/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/retry"
)

// ErrDispatcherStopped is used to abort packets that were still waiting when the dispatcher stopped.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher moves packets from the admission queue to the worker pool one at a time.
// It implements service.Worker. A failed loop is restarted with exponential backoff
// until MaxRestarts is exhausted, then Run returns an error.
type Dispatcher struct {
	queue        *Queue
	pool         *Pool
	logger       log.FieldLogger
	metrics      MetricsCollector
	maxRestarts  int
	restartDelay time.Duration
	running      *atomic.Bool
	submitter    submitter
}

// submitter hands a taken packet over for execution. *Pool is the only production implementation.
type submitter interface {
	Submit(pk *Packet)
}

// New creates a Dispatcher together with its queue and pool. metrics may be nil.
func New(cfg *Config, logger log.FieldLogger, metrics MetricsCollector) *Dispatcher {
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	queue := NewQueue(logger, QueueOpts{Capacity: cfg.QueueCapacity, Metrics: metrics})
	pool := NewPool(cfg.Workers, logger, metrics)
	return &Dispatcher{
		queue:        queue,
		pool:         pool,
		logger:       logger,
		metrics:      metrics,
		maxRestarts:  cfg.MaxRestarts,
		restartDelay: cfg.RestartDelay,
		running:      atomic.NewBool(false),
		submitter:    pool,
	}
}

// Queue returns the admission queue the dispatcher consumes.
func (d *Dispatcher) Queue() *Queue {
	return d.queue
}

// Pool returns the worker pool packets are submitted to.
func (d *Dispatcher) Pool() *Pool {
	return d.pool
}

// Admit puts the packet into the admission queue.
func (d *Dispatcher) Admit(pk *Packet) error {
	return d.queue.Admit(pk)
}

// Running reports whether the dispatcher loop is active.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Run implements service.Worker.
// The restart budget and delay are restored once a restarted loop dispatches a packet,
// so only consecutive failures count against MaxRestarts.
// On return the queue is closed, waiting packets are aborted and all running tasks have finished.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.running.Store(true)
	d.logger.Info("dispatcher started",
		log.Int("workers", d.pool.Workers()), log.Int("queue_capacity", d.queue.capacity))
	defer d.shutdown()

	isRetryable := func(error) bool { return d.maxRestarts > 0 }
	notify := func(err error, next time.Duration) {
		d.metrics.IncDispatcherRestarts()
		d.logger.Warn("dispatcher loop failed, restarting", log.Error(err), log.Duration("delay", next))
	}
	restarts := retry.NewExponentialBackoffPolicy(d.restartDelay, d.maxRestarts).NewBackOff()
	err := retry.DoWithBackOff(ctx, restarts, isRetryable, notify, func(ctx context.Context) error {
		return d.loop(ctx, restarts.Reset)
	})
	if err == nil || ctx.Err() != nil {
		return nil
	}
	d.logger.Error("dispatcher loop failed, giving up", log.Error(err), log.Int("max_restarts", d.maxRestarts))
	return fmt.Errorf("dispatcher: %w", err)
}

// loop calls onDispatched after the first packet it has submitted.
func (d *Dispatcher) loop(ctx context.Context, onDispatched func()) (err error) {
	var current *Packet
	dispatched := false
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
			if current != nil {
				current.Abort(err)
			}
		}
	}()

	for ctx.Err() == nil {
		pk, takeErr := d.queue.Take(ctx)
		if takeErr != nil {
			if errors.Is(takeErr, ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return takeErr
		}
		current = pk
		d.submitter.Submit(pk)
		current = nil
		if !dispatched {
			dispatched = true
			onDispatched()
		}
	}
	return nil
}

func (d *Dispatcher) shutdown() {
	d.running.Store(false)
	rest := d.queue.Close()
	for _, pk := range rest {
		pk.Abort(ErrDispatcherStopped)
	}
	d.pool.Wait()
	d.logger.Info("dispatcher stopped", log.Int("aborted", len(rest)), log.Int("peak_depth", d.queue.PeakDepth()))
}
