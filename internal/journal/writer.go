package journal

import (
	"sync"
	"sync/atomic"

	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
)

type op struct {
	record core.SessionRecord
	ended  bool
}

// Writer hands session records to a Backend on its own goroutine so the
// caller never waits on storage. Records are dropped when the buffer is
// full or the writer is closed.
type Writer struct {
	backend Backend
	logger  zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	ops     chan op
	done    chan struct{}
	dropped atomic.Uint64
}

// NewWriter starts the writer goroutine with a buffer of size records.
func NewWriter(backend Backend, size int, log zerolog.Logger) *Writer {
	if size < 1 {
		size = 1
	}
	w := &Writer{
		backend: backend,
		logger:  log,
		ops:     make(chan op, size),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// Started queues a session start.
func (w *Writer) Started(r core.SessionRecord) {
	w.enqueue(op{record: r})
}

// Ended queues a session end.
func (w *Writer) Ended(r core.SessionRecord) {
	w.enqueue(op{record: r, ended: true})
}

// Dropped returns how many records were not queued.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *Writer) enqueue(o op) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.ops <- o:
	default:
		w.dropped.Add(1)
		w.logger.Warn().Uint64("session", o.record.ID).Msg("journal buffer full, record dropped")
	}
}

func (w *Writer) loop() {
	defer close(w.done)
	for o := range w.ops {
		var err error
		if o.ended {
			err = w.backend.SessionEnded(o.record)
		} else {
			err = w.backend.SessionStarted(o.record)
		}
		if err != nil {
			w.logger.Error().Err(err).Uint64("session", o.record.ID).Bool("ended", o.ended).
				Msg("failed to journal session")
		}
	}
}

// Close writes out everything queued, then closes the backend.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	close(w.ops)
	w.mu.Unlock()

	<-w.done
	return w.backend.Close()
}
