package streaming

import (
	"encoding/json"

	"github.com/OCAP2/touchfly/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello        = "hello"
	TypeBye          = "bye"
	TypeRunningState = "running_state"
	TypeTarget       = "target"
	TypeProgress     = "progress"
	TypeElapsed      = "elapsed"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload identifies the vehicle link. It is replayed after every
// reconnect.
type HelloPayload struct {
	Vehicle       string  `json:"vehicle"`
	HomeLatitude  float64 `json:"homeLatitude"`
	HomeLongitude float64 `json:"homeLongitude"`
}

// RunningStatePayload carries a running state transition.
type RunningStatePayload struct {
	State          string `json:"state"`
	Blocker        string `json:"blocker,omitempty"`
	DroneConnected bool   `json:"droneConnected"`
}

// TargetPayload carries the active target. Kind is "none" when cleared.
type TargetPayload struct {
	Kind      string  `json:"kind"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// ProgressPayload carries the waypoint progress fraction.
type ProgressPayload struct {
	Fraction float64 `json:"fraction"`
}

// ElapsedPayload carries the active session duration.
type ElapsedPayload struct {
	Seconds float64 `json:"seconds"`
	Active  bool    `json:"active"`
}

// NewRunningStatePayload builds the payload for s.
func NewRunningStatePayload(s core.RunningState) RunningStatePayload {
	p := RunningStatePayload{State: s.Kind.String(), DroneConnected: s.Connected()}
	if s.Kind == core.KindBlocked {
		p.Blocker = s.Blocker.String()
	}
	return p
}

// NewTargetPayload builds the payload for t.
func NewTargetPayload(t core.Target) TargetPayload {
	if t.IsNone() {
		return TargetPayload{Kind: t.Kind.String()}
	}
	return TargetPayload{
		Kind:      t.Kind.String(),
		Latitude:  t.Location.Latitude,
		Longitude: t.Location.Longitude,
		Altitude:  t.Altitude,
		Speed:     t.Speed,
	}
}
