package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) has(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, msg := range l.messages {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, msg := range l.messages {
		if strings.HasPrefix(msg, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T, size int) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger, size)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func runDispatcher(t *testing.T, d *Dispatcher) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t, 4)

	called := false
	d.Register("test", func(e Event) (any, error) {
		called = true
		if e.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
		return e.Payload, nil
	})

	result, err := d.Dispatch(Event{Kind: "test", Payload: "arg1"})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
	if result != "arg1" {
		t.Errorf("expected 'arg1', got %v", result)
	}
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d, _ := newTestDispatcher(t, 4)

	if _, err := d.Dispatch(Event{Kind: "unknown"}); err == nil {
		t.Error("expected error for unknown kind from Dispatch")
	}
	if err := d.Post(Event{Kind: "unknown"}); err == nil {
		t.Error("expected error for unknown kind from Post")
	}
	if _, err := d.Call(context.Background(), Event{Kind: "unknown"}); err == nil {
		t.Error("expected error for unknown kind from Call")
	}
}

func TestDispatcher_PostIsSerializedInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t, 100)

	var got []int
	var wg sync.WaitGroup
	wg.Add(50)
	d.Register("seq", func(e Event) (any, error) {
		// no lock: handlers never run concurrently
		got = append(got, e.Payload.(int))
		wg.Done()
		return nil, nil
	})
	runDispatcher(t, d)

	for i := 0; i < 50; i++ {
		if err := d.Post(Event{Kind: "seq", Payload: i}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("event %d handled out of order: %d", i, v)
		}
	}
}

func TestDispatcher_Call(t *testing.T) {
	d, _ := newTestDispatcher(t, 4)

	d.Register("double", func(e Event) (any, error) {
		return e.Payload.(int) * 2, nil
	})
	d.Register("fail", func(e Event) (any, error) {
		return nil, errors.New("boom")
	})
	runDispatcher(t, d)

	v, err := d.Call(context.Background(), Event{Kind: "double", Payload: 21})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %v", v)
	}

	if _, err := d.Call(context.Background(), Event{Kind: "fail"}); err == nil || err.Error() != "boom" {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestDispatcher_CallContextCancelled(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	d.Register("noop", func(e Event) (any, error) { return nil, nil })
	// not running: Call waits for a reply that never comes

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := d.Call(ctx, Event{Kind: "noop"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDispatcher_DroppableDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t, 2)

	d.Register("frame", func(e Event) (any, error) { return nil, nil }, Droppable())
	// not running: the mailbox fills up

	if err := d.Post(Event{Kind: "frame"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Post(Event{Kind: "frame"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.Post(Event{Kind: "frame"}); !errors.Is(err, ErrMailboxFull) {
		t.Errorf("expected ErrMailboxFull, got %v", err)
	}
}

func TestDispatcher_PostBlocksWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	d.Register("cmd", func(e Event) (any, error) { return nil, nil })

	d.Post(Event{Kind: "cmd"})

	done := make(chan struct{})
	go func() {
		d.Post(Event{Kind: "cmd"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("post should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Expected - post is blocking
	}

	runDispatcher(t, d)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("post did not unblock once the mailbox drained")
	}
}

func TestDispatcher_Close(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	d.Register("cmd", func(e Event) (any, error) { return nil, nil })

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(context.Background()) }()

	d.Close()
	d.Close()

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("expected nil from Run after Close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	if err := d.Post(Event{Kind: "cmd"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t, 4)

	d.Register("logged", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	d.Dispatch(Event{Kind: "logged"})

	logger.mu.Lock()
	n := len(logger.messages)
	logger.mu.Unlock()

	if n < 2 {
		t.Errorf("expected at least 2 log messages, got %d", n)
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t, 4)

	d.Register("error", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	d.Dispatch(Event{Kind: "error"})

	if !logger.has("ERROR") {
		t.Error("expected error log message")
	}
}

func TestDispatcher_PostedErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	d.Register("error", func(e Event) (any, error) {
		defer wg.Done()
		return nil, fmt.Errorf("test error")
	})
	runDispatcher(t, d)

	d.Post(Event{Kind: "error"})
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for !logger.has("ERROR") {
		if time.Now().After(deadline) {
			t.Fatal("expected error log message")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDispatcher_PostedLoggedErrorIsLoggedOnce(t *testing.T) {
	d, logger := newTestDispatcher(t, 4)

	d.Register("error", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())
	d.Register("ping", func(e Event) (any, error) { return nil, nil })
	runDispatcher(t, d)

	if err := d.Post(Event{Kind: "error"}); err != nil {
		t.Fatalf("post failed: %v", err)
	}
	// ping runs after error, so error has been fully handled
	if _, err := d.Call(context.Background(), Event{Kind: "ping"}); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	if n := logger.count("ERROR"); n != 1 {
		t.Errorf("expected 1 error log message, got %d", n)
	}
}
