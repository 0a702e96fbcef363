// Package guidance issues vehicle commands for the active target and keeps
// the guidance session used for progress.
package guidance

import (
	"context"
	"fmt"
	"time"

	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Commander is the vehicle-facing command surface. Calls are fire and
// forget; their effect is observed through later telemetry.
type Commander interface {
	MoveTo(d core.MoveDirective)
	DeactivateGuided()
	StartPOI(p core.PointDirective)
	DeactivatePOI()
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// WallClock is the system clock.
var WallClock Clock = wallClock{}

// Mode is what the dispatcher last did with the target.
type Mode int

const (
	ModeIdle Mode = iota
	// ModeWatching aims the camera at the target without moving.
	ModeWatching
	// ModeExecuting flies to the target.
	ModeExecuting
)

func (m Mode) String() string {
	switch m {
	case ModeWatching:
		return "watching"
	case ModeExecuting:
		return "executing"
	default:
		return "idle"
	}
}

// Session is the bookkeeping of one continuous waypoint flight.
type Session struct {
	// StartPosition is nil when the drone position was unknown at dispatch.
	StartPosition *core.Location
	StartTime     time.Time
	Target        core.Location
}

// Config holds the fixed directive parameters.
type Config struct {
	VerticalSpeed    float64
	YawRotationSpeed float64
}

// Guide is the Guidance Dispatcher. Not safe for concurrent use.
type Guide struct {
	cmd    Commander
	clock  Clock
	cfg    Config
	logger zerolog.Logger

	mode    Mode
	session *Session

	// holding tracks whether each capability may hold a directive of ours,
	// from our own commands or from telemetry.
	guidedHolding bool
	poiHolding    bool

	commands metric.Int64Counter
}

// New creates a Guide.
func New(cmd Commander, clock Clock, cfg Config, logger zerolog.Logger) (*Guide, error) {
	if clock == nil {
		clock = WallClock
	}
	g := &Guide{cmd: cmd, clock: clock, cfg: cfg, logger: logger}

	var err error
	g.commands, err = meter().Int64Counter(
		"guidance.commands",
		metric.WithDescription("Vehicle commands issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating commands counter: %w", err)
	}
	return g, nil
}

// Mode returns the current mode.
func (g *Guide) Mode() Mode { return g.mode }

// Session returns the active session, nil if none.
func (g *Guide) Session() *Session { return g.session }

// ObserveGuided records whether telemetry shows a guided directive.
func (g *Guide) ObserveGuided(holding bool) { g.guidedHolding = holding }

// ObservePOI records whether telemetry shows a point being tracked.
func (g *Guide) ObservePOI(holding bool) { g.poiHolding = holding }

// Watch aims the camera at t without commanding translation.
func (g *Guide) Watch(t core.Target) {
	if t.IsNone() {
		return
	}
	if t.IsWaypoint() {
		g.deactivateGuided()
	}
	g.startPOI(core.PointDirective{Location: t.Location, Altitude: t.Altitude})
	g.mode = ModeWatching
}

// Look starts a point-of-interest look-at for a POI target and ends any
// waypoint session, which it returns.
func (g *Guide) Look(t core.Target) *Session {
	if !t.IsPOI() {
		return nil
	}
	if g.guidedHolding {
		g.deactivateGuided()
	}
	g.startPOI(core.PointDirective{Location: t.Location, Altitude: t.Altitude})
	g.mode = ModeExecuting
	s := g.session
	g.session = nil
	return s
}

// Execute flies to waypoint t. position is the live drone position, nil if
// unknown. A new session starts unless one is already running to the same
// location. It returns the session it replaced, if any.
func (g *Guide) Execute(t core.Target, position *core.Location) (replaced *Session) {
	if !t.IsWaypoint() {
		return nil
	}
	g.deactivatePOI()
	g.moveTo(core.MoveDirective{
		Location:         t.Location,
		Altitude:         t.Altitude,
		Orientation:      core.OrientationToTarget,
		HorizontalSpeed:  t.Speed,
		VerticalSpeed:    g.cfg.VerticalSpeed,
		YawRotationSpeed: g.cfg.YawRotationSpeed,
	})
	g.mode = ModeExecuting

	if g.session != nil && g.session.Target == t.Location {
		return nil
	}
	replaced = g.session
	g.session = &Session{
		StartPosition: copyLocation(position),
		StartTime:     g.clock.Now(),
		Target:        t.Location,
	}
	return replaced
}

// Adopt starts a session for a flight the vehicle reports without one of
// ours, such as a directive that survived a reconnection. No command is
// issued.
func (g *Guide) Adopt(t core.Target, position *core.Location) bool {
	if !t.IsWaypoint() || g.session != nil {
		return false
	}
	g.session = &Session{
		StartPosition: copyLocation(position),
		StartTime:     g.clock.Now(),
		Target:        t.Location,
	}
	g.mode = ModeExecuting
	return true
}

// Stop deactivates both capabilities if either may hold a directive and
// ends the session. A second Stop issues nothing.
func (g *Guide) Stop() *Session {
	if g.guidedHolding || g.poiHolding {
		g.deactivateGuided()
		g.deactivatePOI()
	}
	g.guidedHolding = false
	g.poiHolding = false
	return g.Reset()
}

// Reset ends the session without commanding the vehicle and returns it.
func (g *Guide) Reset() *Session {
	s := g.session
	g.session = nil
	g.mode = ModeIdle
	return s
}

// Elapsed returns the time since the session started.
func (g *Guide) Elapsed() (time.Duration, bool) {
	if g.session == nil {
		return 0, false
	}
	return g.clock.Now().Sub(g.session.StartTime), true
}

func (g *Guide) moveTo(d core.MoveDirective) {
	g.logger.Debug().
		Float64("lat", d.Location.Latitude).
		Float64("lon", d.Location.Longitude).
		Float64("alt", d.Altitude).
		Float64("speed", d.HorizontalSpeed).
		Msg("move to")
	g.count("moveTo")
	g.cmd.MoveTo(d)
	g.guidedHolding = true
}

func (g *Guide) deactivateGuided() {
	g.logger.Debug().Msg("deactivate guided")
	g.count("deactivateGuided")
	g.cmd.DeactivateGuided()
	g.guidedHolding = false
}

func (g *Guide) startPOI(p core.PointDirective) {
	g.logger.Debug().
		Float64("lat", p.Location.Latitude).
		Float64("lon", p.Location.Longitude).
		Float64("alt", p.Altitude).
		Msg("start poi")
	g.count("startPOI")
	g.cmd.StartPOI(p)
	g.poiHolding = true
}

func (g *Guide) deactivatePOI() {
	g.logger.Debug().Msg("deactivate poi")
	g.count("deactivatePOI")
	g.cmd.DeactivatePOI()
	g.poiHolding = false
}

func (g *Guide) count(command string) {
	g.commands.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}

func copyLocation(l *core.Location) *core.Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
