// Package channel provides generic channel interfaces for decoupled communication.
package channel

// Receiver is one consumer of a stream. Unsubscribe releases it and
// closes the channel returned by Receive.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
	Unsubscribe()
}

// Publisher provides write access to a last-value stream.
type Publisher[T any] interface {
	Publish(T) bool
}
