package channel

import "sync"

// Value is a broadcast last-value stream: one producer, any number of
// consumers. Consumers only ever see the newest value, never a backlog.
type Value[T any] struct {
	mu      sync.RWMutex
	current T
	equal   func(a, b T) bool
	subs    map[*Subscription[T]]struct{}
	closed  bool
}

// NewValue creates a stream holding initial. If equal is non-nil, publishing
// a value equal to the current one is a no-op.
func NewValue[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		current: initial,
		equal:   equal,
		subs:    make(map[*Subscription[T]]struct{}),
	}
}

// NewComparable creates a stream that suppresses repeated values.
func NewComparable[T comparable](initial T) *Value[T] {
	return NewValue(initial, func(a, b T) bool { return a == b })
}

// Publish stores v and hands it to every subscriber without blocking.
// Returns false if v was suppressed or the stream is closed.
func (v *Value[T]) Publish(x T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	if v.equal != nil && v.equal(v.current, x) {
		return false
	}
	v.current = x
	for s := range v.subs {
		s.offer(x)
	}
	return true
}

// Load returns the latest value.
func (v *Value[T]) Load() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Subscribe registers a consumer. The current value is delivered first.
func (v *Value[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{ch: make(chan T, 1), parent: v}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		close(s.ch)
		return s
	}
	s.offer(v.current)
	v.subs[s] = struct{}{}
	return s
}

// Close closes every subscription. Later publishes are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for s := range v.subs {
		close(s.ch)
	}
	v.subs = nil
}

// Subscription is one consumer of a Value.
type Subscription[T any] struct {
	ch     chan T
	parent *Value[T]
}

// offer replaces any unread value; the caller holds the parent lock.
func (s *Subscription[T]) offer(x T) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- x
}

// Receive returns the receive-only channel
func (s *Subscription[T]) Receive() <-chan T {
	return s.ch
}

// Len returns 1 if an unread value is pending.
func (s *Subscription[T]) Len() int {
	return len(s.ch)
}

// Unsubscribe detaches the consumer and closes its channel.
func (s *Subscription[T]) Unsubscribe() {
	v := s.parent
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.subs[s]; !ok {
		return
	}
	delete(v.subs, s)
	close(s.ch)
}
