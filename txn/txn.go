/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package txn defines the per-request transactional resource used by the gateway.
//
// Every call that reaches the gateway gets its own Handle opened from a Provider.
// The handle is finished exactly once: committed when the call succeeds, rolled back otherwise.
// Handles are never shared between requests.
package txn

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrTxDone is returned when a handle that was already committed or rolled back is finished again.
var ErrTxDone = errors.New("transaction has already been committed or rolled back")

// Tx is a started transaction of the underlying resource.
type Tx interface {
	Commit() error
	Rollback() error
}

// Provider starts transactions of a concrete resource (SQL database, bolt file, ...).
type Provider interface {
	Begin(ctx context.Context) (Tx, error)
}

// Pinger is implemented by providers that can report whether the resource is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderFunc is an adapter to allow the use of ordinary functions as Provider.
type ProviderFunc func(ctx context.Context) (Tx, error)

// Begin implements Provider.
func (f ProviderFunc) Begin(ctx context.Context) (Tx, error) {
	return f(ctx)
}

// Handle guards a transaction so that it is finished exactly once.
// It is safe for concurrent use, though a handle normally belongs to a single request.
type Handle struct {
	tx Tx

	mu       sync.Mutex
	finished bool
}

// Open begins a new transaction and wraps it into a Handle.
func Open(ctx context.Context, p Provider) (*Handle, error) {
	tx, err := p.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	return &Handle{tx: tx}, nil
}

// NewHandle wraps an already started transaction.
func NewHandle(tx Tx) *Handle {
	return &Handle{tx: tx}
}

// Tx returns the underlying transaction. Backends type-assert it to the concrete type they work with.
func (h *Handle) Tx() Tx {
	return h.tx
}

// Commit commits the transaction. The handle is finished even if the commit fails.
func (h *Handle) Commit() error {
	return h.finish(h.tx.Commit)
}

// Rollback rolls the transaction back. The handle is finished even if the rollback fails.
func (h *Handle) Rollback() error {
	return h.finish(h.tx.Rollback)
}

// Close rolls the transaction back unless it has already been finished.
// It is meant to be deferred right after Open.
func (h *Handle) Close() error {
	if err := h.Rollback(); err != nil && !errors.Is(err, ErrTxDone) {
		return err
	}
	return nil
}

// Finished reports whether Commit or Rollback has been called.
func (h *Handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

func (h *Handle) finish(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return ErrTxDone
	}
	h.finished = true
	return fn()
}
