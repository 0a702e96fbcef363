package journal

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/touchfly/internal/config"
	"github.com/OCAP2/touchfly/internal/journal/gormjournal"
	"github.com/OCAP2/touchfly/internal/journal/memjournal"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.JournalConfig
		check   func(t *testing.T, b Backend)
		wantErr bool
	}{
		{
			name: "memory",
			cfg:  config.JournalConfig{Type: "memory", Capacity: 4},
			check: func(t *testing.T, b Backend) {
				assert.IsType(t, &memjournal.Backend{}, b)
			},
		},
		{
			name: "sqlite in memory",
			cfg:  config.JournalConfig{Type: "sqlite"},
			check: func(t *testing.T, b Backend) {
				assert.IsType(t, &gormjournal.Backend{}, b)
			},
		},
		{
			name: "none",
			cfg:  config.JournalConfig{Type: "none"},
			check: func(t *testing.T, b Backend) {
				assert.IsType(t, Discard{}, b)
			},
		},
		{
			name:    "unknown",
			cfg:     config.JournalConfig{Type: "mongo"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.cfg, zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, b.Init())
			t.Cleanup(func() { _ = b.Close() })
			tt.check(t, b)
		})
	}
}

type recordingBackend struct {
	mu      sync.Mutex
	started []core.SessionRecord
	ended   []core.SessionRecord
	closed  bool
	failing bool
	gate    chan struct{}
}

func (b *recordingBackend) Init() error { return nil }

func (b *recordingBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *recordingBackend) SessionStarted(r core.SessionRecord) error {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, r)
	if b.failing {
		return errors.New("disk full")
	}
	return nil
}

func (b *recordingBackend) SessionEnded(r core.SessionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, r)
	return nil
}

func TestWriter_DeliversInOrderAndClosesBackend(t *testing.T) {
	rb := &recordingBackend{}
	w := NewWriter(rb, 8, zerolog.Nop())

	w.Started(core.SessionRecord{ID: 1})
	w.Ended(core.SessionRecord{ID: 1, Outcome: core.OutcomeReached, EndedAt: time.Now()})
	w.Started(core.SessionRecord{ID: 2})
	require.NoError(t, w.Close())

	rb.mu.Lock()
	defer rb.mu.Unlock()
	require.Len(t, rb.started, 2)
	require.Len(t, rb.ended, 1)
	assert.Equal(t, uint64(2), rb.started[1].ID)
	assert.Equal(t, core.OutcomeReached, rb.ended[0].Outcome)
	assert.True(t, rb.closed)
	assert.Zero(t, w.Dropped())
}

func TestWriter_DropsWhenFull(t *testing.T) {
	rb := &recordingBackend{gate: make(chan struct{})}
	w := NewWriter(rb, 1, zerolog.Nop())

	// the first record blocks the writer goroutine inside the backend
	w.Started(core.SessionRecord{ID: 1})
	require.Eventually(t, func() bool { return len(w.ops) == 0 }, time.Second, time.Millisecond)
	w.Started(core.SessionRecord{ID: 2})
	w.Started(core.SessionRecord{ID: 3})

	assert.Equal(t, uint64(1), w.Dropped())
	close(rb.gate)
	require.NoError(t, w.Close())

	rb.mu.Lock()
	defer rb.mu.Unlock()
	assert.Len(t, rb.started, 2)
}

func TestWriter_AfterCloseIsDropped(t *testing.T) {
	rb := &recordingBackend{}
	w := NewWriter(rb, 4, zerolog.Nop())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	w.Started(core.SessionRecord{ID: 9})
	assert.Equal(t, uint64(1), w.Dropped())
}

func TestWriter_BackendErrorsAreLogged(t *testing.T) {
	rb := &recordingBackend{failing: true}
	w := NewWriter(rb, 4, zerolog.Nop())

	w.Started(core.SessionRecord{ID: 1})
	w.Started(core.SessionRecord{ID: 2})
	require.NoError(t, w.Close())

	rb.mu.Lock()
	defer rb.mu.Unlock()
	assert.Len(t, rb.started, 2)
}

func TestWriter_EndToEndMemory(t *testing.T) {
	mem := memjournal.New(8)
	w := NewWriter(mem, 8, zerolog.Nop())

	w.Started(core.SessionRecord{ID: 1})
	w.Ended(core.SessionRecord{ID: 1, Outcome: core.OutcomeCleared})
	require.NoError(t, w.Close())

	sessions, err := mem.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, core.OutcomeCleared, sessions[0].Outcome)
}
