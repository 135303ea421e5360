/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Task is the unit of work carried by a packet. It must write the response itself.
type Task func(ctx context.Context)

// AbortFunc is called instead of (or after a failed) Task when the packet cannot be processed normally.
// It is expected to produce an error response for the caller.
type AbortFunc func(err error)

// PanicError is passed to AbortFunc when the task panicked.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Packet is one admitted call together with its pending response.
// It is consumed exactly once and Done is closed when it has been finished.
type Packet struct {
	ctx        context.Context
	task       Task
	abort      AbortFunc
	admittedAt time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// NewPacket creates a packet. abort may be nil.
func NewPacket(ctx context.Context, task Task, abort AbortFunc) *Packet {
	return &Packet{ctx: ctx, task: task, abort: abort, done: make(chan struct{})}
}

// Context returns the context the task runs with.
func (p *Packet) Context() context.Context {
	return p.ctx
}

// Done is closed once the packet is finished, whatever the outcome.
func (p *Packet) Done() <-chan struct{} {
	return p.done
}

// Finish releases the packet. Subsequent calls do nothing.
func (p *Packet) Finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

// Abort reports err through the packet's AbortFunc and finishes it.
// It does nothing if the packet is already finished.
func (p *Packet) Abort(err error) {
	p.doneOnce.Do(func() {
		if p.abort != nil {
			p.abort(err)
		}
		close(p.done)
	})
}
