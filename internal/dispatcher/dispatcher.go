package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrMailboxFull is returned by Post for a droppable event when the
	// mailbox has no room.
	ErrMailboxFull = errors.New("mailbox full")
	// ErrClosed is returned once the dispatcher has been closed.
	ErrClosed = errors.New("dispatcher closed")
)

// Event is one message for the owning goroutine: a telemetry update, a user
// command or a frame tick.
type Event struct {
	Kind      string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	droppable bool
	logged    bool
}

// Droppable makes Post drop the event instead of blocking when the mailbox
// is full. Use it for high-rate events where only the latest matters.
func Droppable() Option {
	return func(c *config) {
		c.droppable = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type handler struct {
	fn        HandlerFunc
	droppable bool
	logged    bool
	attr      attribute.KeyValue
}

type result struct {
	value any
	err   error
}

type envelope struct {
	event Event
	reply chan result
}

// Dispatcher is a serialized mailbox: every handler runs on the goroutine
// that calls Run, one event at a time, in arrival order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]*handler
	logger   Logger

	mailbox   chan envelope
	done      chan struct{}
	closeOnce sync.Once

	// OTEL metrics
	mailboxSize metric.Int64ObservableGauge
	processed   metric.Int64Counter
	dropped     metric.Int64Counter
}

// New creates a Dispatcher whose mailbox holds up to size pending events.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, size int) (*Dispatcher, error) {
	if size < 1 {
		size = 1
	}
	d := &Dispatcher{
		handlers: make(map[string]*handler),
		logger:   logger,
		mailbox:  make(chan envelope, size),
		done:     make(chan struct{}),
	}

	m := meter()

	var err error

	d.mailboxSize, err = m.Int64ObservableGauge(
		"dispatcher.mailbox.size",
		metric.WithDescription("Current number of events waiting in the mailbox"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating mailbox size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(d.mailboxSize, int64(len(d.mailbox)))
			return nil
		},
		d.mailboxSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering mailbox callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to a full mailbox"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given event kind with optional configuration.
func (d *Dispatcher) Register(kind string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	fn := h
	if cfg.logged {
		fn = d.withLogging(kind, fn)
	}

	d.mu.Lock()
	d.handlers[kind] = &handler{
		fn:        fn,
		droppable: cfg.droppable,
		logged:    cfg.logged,
		attr:      attribute.String("kind", kind),
	}
	d.mu.Unlock()
}

func (d *Dispatcher) lookup(kind string) (*handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[kind]
	return h, ok
}

// Dispatch runs the handler for e on the calling goroutine. Only the
// goroutine that owns the handled state may call it.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.lookup(e.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown event: %s", e.Kind)
	}
	return d.invoke(h, e)
}

func (d *Dispatcher) invoke(h *handler, e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	v, err := h.fn(e)
	d.processed.Add(context.Background(), 1, metric.WithAttributes(h.attr))
	return v, err
}

// Post enqueues e without waiting for it to be handled. It blocks while
// the mailbox is full unless the kind was registered Droppable.
func (d *Dispatcher) Post(e Event) error {
	h, ok := d.lookup(e.Kind)
	if !ok {
		return fmt.Errorf("unknown event: %s", e.Kind)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	env := envelope{event: e}

	if d.closed() {
		return ErrClosed
	}
	if h.droppable {
		select {
		case d.mailbox <- env:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(h.attr))
			return fmt.Errorf("%w: %s", ErrMailboxFull, e.Kind)
		}
	}

	select {
	case d.mailbox <- env:
		return nil
	case <-d.done:
		return ErrClosed
	}
}

// Call enqueues e and waits for its handler's result.
func (d *Dispatcher) Call(ctx context.Context, e Event) (any, error) {
	if _, ok := d.lookup(e.Kind); !ok {
		return nil, fmt.Errorf("unknown event: %s", e.Kind)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	env := envelope{event: e, reply: make(chan result, 1)}
	if d.closed() {
		return nil, ErrClosed
	}

	select {
	case d.mailbox <- env:
	case <-d.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-env.reply:
		return r.value, r.err
	case <-d.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run handles mailbox events until ctx is done or Close is called. It must
// be called from exactly one goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case env := <-d.mailbox:
			h, ok := d.lookup(env.event.Kind)
			if !ok {
				continue
			}
			v, err := d.invoke(h, env.event)
			switch {
			case env.reply != nil:
				env.reply <- result{value: v, err: err}
			case err != nil && !h.logged:
				// logged handlers already reported it
				d.logger.Error("event failed", "kind", env.event.Kind, "error", err)
			}
		}
	}
}

func (d *Dispatcher) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Close stops Run and rejects further events. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
}

func (d *Dispatcher) withLogging(kind string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "kind", kind, "queued", start.Sub(e.Timestamp))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "kind", kind, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "kind", kind, "duration", time.Since(start))
		}

		return result, err
	}
}
