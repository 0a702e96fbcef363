package queue

import (
	"sync"
)

// Queue is a thread-safe FIFO. With a positive capacity it is bounded and
// evicts the oldest items to make room.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	evicted  uint64
}

// New creates an empty queue. capacity <= 0 means unbounded.
func New[T any](capacity int) *Queue[T] {
	q := &Queue[T]{capacity: capacity}
	if capacity > 0 {
		q.items = make([]T, 0, capacity)
	}
	return q
}

// Push appends items and returns how many old items were evicted.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if q.capacity <= 0 || len(q.items) <= q.capacity {
		return 0
	}
	n := len(q.items) - q.capacity
	clear(q.items[:n])
	q.items = append(q.items[:0], q.items[n:]...)
	q.evicted += uint64(n)
	return n
}

// Pop removes and returns the first item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Find returns the newest item matching fn.
func (q *Queue[T]) Find(fn func(T) bool) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.items) - 1; i >= 0; i-- {
		if fn(q.items[i]) {
			return q.items[i], true
		}
	}
	var zero T
	return zero, false
}

// Update applies fn to the newest item matching match. Returns false if
// nothing matched.
func (q *Queue[T]) Update(match func(T) bool, fn func(*T)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.items) - 1; i >= 0; i-- {
		if match(q.items[i]) {
			fn(&q.items[i])
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the items, oldest first.
func (q *Queue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Evicted returns how many items were dropped for capacity.
func (q *Queue[T]) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Drain returns all items and clears the queue.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, max(q.capacity, 0))
	return result
}
