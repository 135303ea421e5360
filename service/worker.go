/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"time"

	"github.com/acronis/go-rpcgate/log"
)

// ErrPeriodicWorkerStop may be returned by the wrapped worker to end a PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker performs some (usually long-running) work until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs a worker again and again with a fixed delay between runs.
// Errors of individual runs are logged and do not stop the loop.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	logger   log.FieldLogger
}

// NewPeriodicWorker creates a new PeriodicWorker.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return &PeriodicWorker{worker: worker, interval: interval, logger: logger}
}

// Run implements Worker.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	pw.logger.Info("periodic worker started", log.Duration("interval", pw.interval))
	defer pw.logger.Info("periodic worker stopped")

	timer := time.NewTimer(pw.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if err := pw.worker.Run(ctx); err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				return nil
			}
			pw.logger.Error("periodic worker run failed", log.Error(err))
		}
		timer.Reset(pw.interval)
	}
}
