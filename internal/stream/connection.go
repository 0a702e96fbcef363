package stream

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/OCAP2/touchfly/pkg/streaming"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection owns one WebSocket at a time. A single goroutine writes to
// it; acks read back are handed to whoever waits for that message type.
type connection struct {
	mu      sync.Mutex
	conn    *ws.Conn
	waiters map[string][]chan struct{}
	hello   []byte // replayed after a reconnect
	closed  bool

	sendCh chan []byte
	done   chan struct{}

	target  string
	backoff time.Duration
	logger  zerolog.Logger
}

func newConnection(logger zerolog.Logger) *connection {
	return &connection{
		waiters: make(map[string][]chan struct{}),
		sendCh:  make(chan []byte, sendChSize),
		done:    make(chan struct{}),
		backoff: time.Second,
		logger:  logger,
	}
}

// dial connects once and starts the loops. The secret, if any, travels as
// a query parameter.
func (c *connection) dial(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	c.target = u.String()

	conn, _, err := ws.DefaultDialer.Dial(c.target, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.attach(conn)
	return nil
}

func (c *connection) attach(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)
}

func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := write(conn, data); err != nil {
				c.logger.Warn().Err(err).Msg("Stream write failed")
				go c.reconnect(conn)
				return
			}
		}
	}
}

func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn().Err(err).Msg("Stream read failed")
				go c.reconnect(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if json.Unmarshal(message, &ack) != nil || ack.Type != "ack" {
			c.logger.Debug().Str("raw", string(message)).Msg("Ignoring server message")
			continue
		}
		c.acknowledge(ack.For)
	}
}

func (c *connection) acknowledge(msgType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.waiters[msgType]
	if len(pending) == 0 {
		return
	}
	close(pending[0])
	c.waiters[msgType] = pending[1:]
}

// reconnect replaces broken, backing off exponentially between attempts.
// Only the first caller for a given broken connection does anything.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	_ = broken.Close()
	c.conn = nil
	c.mu.Unlock()

	wait := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		conn, _, err := ws.DefaultDialer.Dial(c.target, nil)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("Stream reconnect failed")
			wait = min(wait*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		hello := c.hello
		c.mu.Unlock()

		if hello != nil {
			if err := write(conn, hello); err != nil {
				c.logger.Warn().Err(err).Msg("Hello replay failed")
				_ = conn.Close()
				continue
			}
		}

		c.logger.Info().Int("attempt", attempt).Msg("Stream reconnected")
		c.attach(conn)
		return
	}

	c.logger.Error().Int("attempts", maxReconnect).Msg("Giving up on stream reconnect")
}

// send queues data for the writer. It never blocks; a full queue drops.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn().Msg("Stream send queue full, dropping message")
		return false
	}
}

// sendAndWait queues data and waits until the server acks msgType.
func (c *connection) sendAndWait(data []byte, msgType string, timeout time.Duration) error {
	acked := make(chan struct{})
	c.mu.Lock()
	c.waiters[msgType] = append(c.waiters[msgType], acked)
	c.mu.Unlock()
	defer c.forget(msgType, acked)

	if !c.send(data) {
		return fmt.Errorf("%s not sent: queue full", msgType)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-acked:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for ack of %q", msgType)
	case <-c.done:
		return fmt.Errorf("connection closed while waiting for ack of %q", msgType)
	}
}

func (c *connection) forget(msgType string, acked chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.waiters[msgType]
	for i, ch := range pending {
		if ch == acked {
			c.waiters[msgType] = append(pending[:i:i], pending[i+1:]...)
			return
		}
	}
}

func (c *connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return conn.Close()
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}
