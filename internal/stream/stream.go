// Package stream forwards the published guidance state to a remote viewer
// over a WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OCAP2/touchfly/internal/channel"
	"github.com/OCAP2/touchfly/internal/touchfly"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/OCAP2/touchfly/pkg/streaming"
	"github.com/rs/zerolog"
)

// Config holds WebSocket streaming configuration.
type Config struct {
	URL     string
	Secret  string
	Vehicle string
	Home    core.Location
}

// Source is the set of published values the streamer forwards.
type Source interface {
	RunningState() channel.Receiver[core.RunningState]
	Target() channel.Receiver[core.Target]
	Progress() channel.Receiver[float64]
	Elapsed() channel.Receiver[touchfly.Elapsed]
}

// Streamer pushes running state, target, progress and elapsed time
// messages. Only the newest value of each is ever sent.
type Streamer struct {
	conn   *connection
	cfg    Config
	logger zerolog.Logger
}

// New creates a streamer. Nothing is sent until Init succeeds.
func New(cfg Config, logger zerolog.Logger) *Streamer {
	return &Streamer{
		conn:   newConnection(logger),
		cfg:    cfg,
		logger: logger,
	}
}

// Init connects and waits for the server to acknowledge hello.
func (s *Streamer) Init() error {
	if err := s.conn.dial(s.cfg.URL, s.cfg.Secret); err != nil {
		return err
	}

	data, err := marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{
		Vehicle:       s.cfg.Vehicle,
		HomeLatitude:  s.cfg.Home.Latitude,
		HomeLongitude: s.cfg.Home.Longitude,
	})
	if err != nil {
		return err
	}
	s.conn.mu.Lock()
	s.conn.hello = data
	s.conn.mu.Unlock()

	return s.conn.sendAndWait(data, streaming.TypeHello, ackTimeout)
}

// Forward sends every value published by src until ctx is done or one of
// its streams closes. Its subscriptions are released on return.
func (s *Streamer) Forward(ctx context.Context, src Source) error {
	states := src.RunningState()
	defer states.Unsubscribe()
	targets := src.Target()
	defer targets.Unsubscribe()
	progress := src.Progress()
	defer progress.Unsubscribe()
	elapsed := src.Elapsed()
	defer elapsed.Unsubscribe()

	for {
		var (
			msgType string
			payload any
		)
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-states.Receive():
			if !ok {
				return nil
			}
			msgType, payload = streaming.TypeRunningState, streaming.NewRunningStatePayload(v)
		case v, ok := <-targets.Receive():
			if !ok {
				return nil
			}
			msgType, payload = streaming.TypeTarget, streaming.NewTargetPayload(v)
		case v, ok := <-progress.Receive():
			if !ok {
				return nil
			}
			msgType, payload = streaming.TypeProgress, streaming.ProgressPayload{Fraction: v}
		case v, ok := <-elapsed.Receive():
			if !ok {
				return nil
			}
			msgType, payload = streaming.TypeElapsed, streaming.ElapsedPayload{Seconds: v.Duration.Seconds(), Active: v.Active}
		}

		if err := s.send(msgType, payload); err != nil {
			s.logger.Error().Err(err).Str("type", msgType).Msg("Failed to stream message")
		}
	}
}

// Close says bye and disconnects.
func (s *Streamer) Close() error {
	data, err := marshalEnvelope(streaming.TypeBye, nil)
	if err == nil && s.conn.connected() {
		if err := s.conn.sendAndWait(data, streaming.TypeBye, ackTimeout); err != nil {
			s.logger.Debug().Err(err).Msg("Bye not acknowledged")
		}
	}
	return s.conn.close()
}

func (s *Streamer) send(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	s.conn.send(data)
	return nil
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
