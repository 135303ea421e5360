/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/acronis/go-rpcgate/log"
)

var (
	// ErrQueueFull is returned by Admit when a bounded queue has no room left.
	ErrQueueFull = errors.New("admission queue is full")

	// ErrQueueClosed is returned by Admit and Take after Close.
	ErrQueueClosed = errors.New("admission queue is closed")
)

// QueueOpts contains optional parameters for Queue.
type QueueOpts struct {
	// Capacity bounds the number of waiting packets. Zero means unbounded.
	Capacity int

	// OnPeak is called every time a new peak depth is reached.
	// It runs under the queue lock, so peaks are reported in increasing order, and must not call back into the queue.
	OnPeak func(depth int)

	Metrics MetricsCollector
}

// Queue is a FIFO of admitted packets that remembers the largest depth it has ever had.
type Queue struct {
	capacity int
	onPeak   func(depth int)
	metrics  MetricsCollector
	logger   log.FieldLogger

	mu        sync.Mutex
	items     *list.List
	peakDepth int
	closed    bool

	// notEmpty has room for one signal; a taker that finds the queue empty waits on it.
	// It is only sent to and closed under mu.
	notEmpty chan struct{}
}

// NewQueue creates a new Queue.
func NewQueue(logger log.FieldLogger, opts QueueOpts) *Queue {
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	return &Queue{
		capacity: opts.Capacity,
		onPeak:   opts.OnPeak,
		metrics:  opts.Metrics,
		logger:   logger,
		items:    list.New(),
		notEmpty: make(chan struct{}, 1),
	}
}

// Admit appends the packet to the tail of the queue. It never blocks.
func (q *Queue) Admit(p *Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		return ErrQueueFull
	}
	p.admittedAt = time.Now()
	q.items.PushBack(p)
	depth := q.items.Len()
	q.metrics.SetQueueDepth(depth)
	if depth > q.peakDepth {
		q.peakDepth = depth
		q.logger.Info("admission queue reached new peak depth", log.Int("peak_depth", depth))
		q.metrics.SetPeakDepth(depth)
		if q.onPeak != nil {
			q.onPeak(depth)
		}
	}
	q.signal()
	return nil
}

// Take removes the packet at the head of the queue, blocking until one is available.
// It returns ctx.Err() when ctx is done first and ErrQueueClosed once the queue is closed.
func (q *Queue) Take(ctx context.Context) (*Packet, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if front := q.items.Front(); front != nil {
			p := q.items.Remove(front).(*Packet)
			depth := q.items.Len()
			if depth > 0 {
				q.signal() // let another taker proceed
			}
			q.metrics.SetQueueDepth(depth)
			q.mu.Unlock()
			return p, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notEmpty:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close rejects further admissions, wakes blocked takers and returns the packets that were still waiting.
// The caller is responsible for aborting them.
func (q *Queue) Close() []*Packet {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	rest := make([]*Packet, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		rest = append(rest, e.Value.(*Packet))
	}
	q.items.Init()
	close(q.notEmpty)
	q.metrics.SetQueueDepth(0)
	q.mu.Unlock()
	return rest
}

// Len returns the number of waiting packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// PeakDepth returns the largest number of packets that have ever been waiting at once.
func (q *Queue) PeakDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peakDepth
}

func (q *Queue) signal() {
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}
