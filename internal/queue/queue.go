// Package queue provides the unbounded FIFO behind store event delivery and
// watcher repair writes.
package queue

import "sync"

// Queue is a thread-safe unbounded FIFO with one consumer.
//
// Producers never block: Enqueue appends and raises a coalescing signal.
// The consumer drains with TryDequeue and parks on Wait when empty.
//
// Close stops accepting items and closes the signal channel. Items already
// queued stay available to TryDequeue, so a consumer that must finish its
// backlog can drain it; a consumer that must stop early simply stops
// dequeuing.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds item to the back of the queue.
// Returns false if the queue is closed.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front item without blocking.
// The second result is false when the queue is empty.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Release the payload so the backing array does not pin it.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return item, true
}

// Wait returns a channel that signals when items may be available.
// After Close it yields at most one pending signal, then reports closed.
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Close stops accepting items and wakes the consumer. Idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
