// Package memjournal keeps the most recent guidance sessions in memory.
package memjournal

import (
	"github.com/OCAP2/touchfly/internal/queue"
	"github.com/OCAP2/touchfly/pkg/core"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// Backend is a bounded in-memory journal. The oldest sessions are evicted
// once capacity is reached.
type Backend struct {
	sessions *queue.Queue[core.SessionRecord]
}

// New creates a memory journal holding up to capacity sessions.
func New(capacity int) *Backend {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Backend{sessions: queue.New[core.SessionRecord](capacity)}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

func (b *Backend) SessionStarted(r core.SessionRecord) error {
	b.sessions.Push(r)
	return nil
}

func (b *Backend) SessionEnded(r core.SessionRecord) error {
	updated := b.sessions.Update(
		func(s core.SessionRecord) bool { return s.ID == r.ID && !s.Ended() },
		func(s *core.SessionRecord) {
			s.EndedAt = r.EndedAt
			s.Outcome = r.Outcome
		},
	)
	if !updated {
		b.sessions.Push(r)
	}
	return nil
}

// Sessions returns the retained sessions, oldest first.
func (b *Backend) Sessions() ([]core.SessionRecord, error) {
	return b.sessions.Snapshot(), nil
}

// Evicted returns how many sessions were dropped for capacity.
func (b *Backend) Evicted() uint64 {
	return b.sessions.Evicted()
}
