package util

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueEmpty  = errors.New("queue empty")
)

// BoundedQueue is a FIFO queue with a hard capacity. When full, Push drops
// the oldest item and reports the drop to the caller.
type BoundedQueue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool
	notEmpty chan struct{}
}

// NewBoundedQueue creates a queue holding at most capacity items.
// capacity <= 0 means unbounded.
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	return &BoundedQueue[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
	}
}

// Push appends an item. Returns dropped=true when the queue was full and
// the oldest item was evicted to make room.
func (q *BoundedQueue[T]) Push(value T) (dropped bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrQueueClosed
	}

	if q.capacity > 0 && len(q.items) >= q.capacity {
		copy(q.items, q.items[1:])
		q.items[len(q.items)-1] = value
		dropped = true
	} else {
		q.items = append(q.items, value)
	}

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
	return dropped, nil
}

func (q *BoundedQueue[T]) tryPop() (T, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.closed && len(q.items) == 0 {
		return zero, false, true
	}
	if len(q.items) == 0 {
		return zero, false, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		select {
		case q.notEmpty <- struct{}{}:
		default:
		}
	}
	return v, true, false
}

// Pop removes the oldest item. timeout < 0 is non-blocking, timeout == 0
// blocks until an item arrives or ctx is done, timeout > 0 waits at most
// that long.
func (q *BoundedQueue[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	v, ok, closed := q.tryPop()
	if closed {
		return zero, ErrQueueClosed
	}
	if ok {
		return v, nil
	}
	if timeout < 0 {
		return zero, ErrQueueEmpty
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-q.notEmpty:
			v, ok, closed := q.tryPop()
			if closed {
				return zero, ErrQueueClosed
			}
			if ok {
				return v, nil
			}
		case <-timeoutCh:
			return zero, errors.New("queue pop timeout")
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *BoundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty checks if the queue is empty.
func (q *BoundedQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Close closes the queue. Queued items can still be drained with Pop.
func (q *BoundedQueue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
	}
	q.mu.Unlock()
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}
