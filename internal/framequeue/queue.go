// Package framequeue is a bounded FIFO between a producer that must never
// block (a media framework streaming thread) and polling consumers.
//
// When the queue is full, Push drops the incoming item and counts the
// drop. Items already queued are never displaced.
package framequeue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// DefaultCapacity matches the preview queue size used by the server.
const DefaultCapacity = 10000

// ErrTimeout is returned by Pop when no item arrived within the timeout.
var ErrTimeout = errors.New("timed out waiting for frame")

// Queue is safe for one or more producers and consumers.
type Queue[T any] struct {
	items   chan T
	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// New returns a queue holding at most capacity items. capacity <= 0 uses
// DefaultCapacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{items: make(chan T, capacity)}
}

// Push enqueues v without blocking. It reports false if v was dropped
// because the queue is full.
func (q *Queue[T]) Push(v T) bool {
	select {
	case q.items <- v:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop waits up to timeout for an item. It returns ErrTimeout when none
// arrived, or ctx.Err() if ctx ends first.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	select {
	case v := <-q.items:
		return v, nil
	default:
	}
	if timeout <= 0 {
		return zero, ErrTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-q.items:
		return v, nil
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryPop returns the next item if one is queued.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v := <-q.items:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Drain removes and returns every queued item in FIFO order.
func (q *Queue[T]) Drain() []T {
	var out []T
	for {
		v, ok := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Reset empties the queue and zeroes the counters.
func (q *Queue[T]) Reset() {
	q.Drain()
	q.pushed.Store(0)
	q.dropped.Store(0)
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap reports the fixed capacity.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Pushed counts accepted items since construction or Reset.
func (q *Queue[T]) Pushed() uint64 { return q.pushed.Load() }

// Dropped counts items rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
