/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package funcs is a backend provider that serves calls with functions registered per "Class.Method".
package funcs

import (
	"context"
	"sync"

	"github.com/acronis/go-rpcgate/backend"
	"github.com/acronis/go-rpcgate/gateway"
)

// Func executes one call. A returned error is reported to the caller.
type Func func(ctx context.Context, call *gateway.Call) error

type key struct {
	class, method string
}

// Table implements gateway.Provider over a set of functions.
type Table struct {
	mu    sync.RWMutex
	funcs map[key]Func
}

var _ gateway.Provider = (*Table)(nil)

// New creates an empty Table.
func New() *Table {
	return &Table{funcs: make(map[key]Func)}
}

// Handle registers fn for the call. A later registration replaces the earlier one.
func (t *Table) Handle(class, method string, fn Func) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.funcs[key{class, method}] = fn
}

// Len returns the number of registered functions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.funcs)
}

// Attempt implements gateway.Provider.
func (t *Table) Attempt(ctx context.Context, call *gateway.Call) gateway.Outcome {
	env := call.Envelope()
	t.mu.RLock()
	fn, ok := t.funcs[key{env.Class(), env.Method()}]
	t.mu.RUnlock()
	if !ok {
		return gateway.OutcomeNotFound
	}
	if err := fn(ctx, call); err != nil {
		return backend.Fail(call, err)
	}
	return gateway.OutcomeSuccess
}
