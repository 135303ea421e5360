/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"runtime"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/acronis/go-rpcgate/log"
)

const logStackSize = 8192

// Pool runs packet tasks on a fixed number of goroutines.
// A running task cannot be canceled: a stalled task keeps its slot until it returns.
type Pool struct {
	workers int
	group   errgroup.Group
	active  *atomic.Int32
	logger  log.FieldLogger
	metrics MetricsCollector
}

// NewPool creates a pool with the given number of slots. metrics may be nil.
func NewPool(workers int, logger log.FieldLogger, metrics MetricsCollector) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	p := &Pool{workers: workers, active: atomic.NewInt32(0), logger: logger, metrics: metrics}
	p.group.SetLimit(workers)
	return p
}

// Submit runs the packet's task in a free slot, blocking until one is available.
// The packet is always finished when the task returns, even if it panics.
func (p *Pool) Submit(pk *Packet) {
	p.group.Go(func() error {
		p.run(pk)
		return nil
	})
}

// Wait blocks until all submitted tasks have returned.
func (p *Pool) Wait() {
	_ = p.group.Wait()
}

// Active returns the number of tasks running right now.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) run(pk *Packet) {
	p.metrics.SetActiveTasks(int(p.active.Inc()))
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			p.logger.Error("panic in dispatched task", log.Any("panic", r), log.String("stack", string(stack)))
			pk.Abort(&PanicError{Value: r})
		}
		pk.Finish()
		p.metrics.SetActiveTasks(int(p.active.Dec()))
	}()
	pk.task(pk.ctx)
}
