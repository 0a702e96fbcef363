// Package journal records guidance sessions to a pluggable backend.
package journal

import (
	"errors"

	"github.com/OCAP2/touchfly/pkg/core"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("journal closed")

// Backend is the interface every journal store satisfies.
type Backend interface {
	Init() error
	Close() error

	// SessionStarted stores a new active session.
	SessionStarted(r core.SessionRecord) error
	// SessionEnded completes the newest active session with the same ID,
	// or stores r as-is when none is found.
	SessionEnded(r core.SessionRecord) error
}

// Reader is implemented by backends that can list what they stored.
type Reader interface {
	// Sessions returns the stored sessions, oldest first.
	Sessions() ([]core.SessionRecord, error)
}
