package touchfly

import (
	"context"
	"fmt"

	"github.com/OCAP2/touchfly/internal/channel"
	"github.com/OCAP2/touchfly/internal/dispatcher"
	"github.com/OCAP2/touchfly/internal/progress"
	"github.com/OCAP2/touchfly/pkg/core"
)

// Event kinds handled by the Service mailbox.
const (
	EventConnection   = "connection"
	EventFlyingState  = "flyingState"
	EventGuided       = "guided"
	EventPOI          = "poi"
	EventAltimeter    = "altimeter"
	EventPosition     = "position"
	EventReturnHome   = "returnHome"
	EventSample       = "sample"
	EventSetWaypoint  = "setWaypoint"
	EventMoveWaypoint = "moveWaypoint"
	EventSetPOI       = "setPOI"
	EventMovePOI      = "movePOI"
	EventSetSpeed     = "setSpeed"
	EventSetAltitude  = "setAltitude"
	EventClear        = "clear"
	EventStart        = "start"
	EventStop         = "stop"
)

// placement is the payload of the set and move commands.
type placement struct {
	Location core.Location
	Altitude *float64
}

// Service runs an Engine on a single goroutine. Telemetry is posted
// without waiting; commands wait for the engine to apply them.
type Service struct {
	engine *Engine
	d      *dispatcher.Dispatcher
}

// NewService wires the engine handlers into a mailbox of the given size.
func NewService(engine *Engine, logger dispatcher.Logger, mailboxSize int) (*Service, error) {
	d, err := dispatcher.New(logger, mailboxSize)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	s := &Service{engine: engine, d: d}
	s.register()
	return s, nil
}

func (s *Service) register() {
	e := s.engine

	s.d.Register(EventConnection, func(ev dispatcher.Event) (any, error) {
		e.OnConnection(ev.Payload.(bool))
		return nil, nil
	}, dispatcher.Logged())
	s.d.Register(EventFlyingState, func(ev dispatcher.Event) (any, error) {
		e.OnFlyingState(ev.Payload.(core.FlyingState))
		return nil, nil
	}, dispatcher.Logged())
	s.d.Register(EventGuided, func(ev dispatcher.Event) (any, error) {
		e.OnGuided(ev.Payload.(*core.GuidedSnapshot))
		return nil, nil
	})
	s.d.Register(EventPOI, func(ev dispatcher.Event) (any, error) {
		e.OnPOI(ev.Payload.(*core.POISnapshot))
		return nil, nil
	})
	s.d.Register(EventAltimeter, func(ev dispatcher.Event) (any, error) {
		e.OnAltimeter(ev.Payload.(core.Altimeter))
		return nil, nil
	}, dispatcher.Droppable())
	s.d.Register(EventPosition, func(ev dispatcher.Event) (any, error) {
		e.OnPosition(ev.Payload.(*core.Pose))
		return nil, nil
	}, dispatcher.Droppable())
	s.d.Register(EventReturnHome, func(ev dispatcher.Event) (any, error) {
		e.OnReturnHome(ev.Payload.(bool))
		return nil, nil
	}, dispatcher.Logged())
	s.d.Register(EventSample, func(ev dispatcher.Event) (any, error) {
		e.Sample()
		return nil, nil
	}, dispatcher.Droppable())

	s.d.Register(EventSetWaypoint, func(ev dispatcher.Event) (any, error) {
		p := ev.Payload.(placement)
		return nil, e.SetWaypoint(p.Location, p.Altitude)
	}, dispatcher.Logged())
	s.d.Register(EventMoveWaypoint, func(ev dispatcher.Event) (any, error) {
		p := ev.Payload.(placement)
		return nil, e.MoveWaypoint(p.Location, p.Altitude)
	})
	s.d.Register(EventSetPOI, func(ev dispatcher.Event) (any, error) {
		p := ev.Payload.(placement)
		return nil, e.SetPOI(p.Location, p.Altitude)
	}, dispatcher.Logged())
	s.d.Register(EventMovePOI, func(ev dispatcher.Event) (any, error) {
		p := ev.Payload.(placement)
		return nil, e.MovePOI(p.Location, p.Altitude)
	})
	s.d.Register(EventSetSpeed, func(ev dispatcher.Event) (any, error) {
		return nil, e.SetSpeed(ev.Payload.(float64))
	}, dispatcher.Logged())
	s.d.Register(EventSetAltitude, func(ev dispatcher.Event) (any, error) {
		return nil, e.SetAltitude(ev.Payload.(float64))
	}, dispatcher.Logged())
	s.d.Register(EventClear, func(ev dispatcher.Event) (any, error) {
		e.Clear()
		return nil, nil
	}, dispatcher.Logged())
	s.d.Register(EventStart, func(ev dispatcher.Event) (any, error) {
		e.Start()
		return nil, nil
	}, dispatcher.Logged())
	s.d.Register(EventStop, func(ev dispatcher.Event) (any, error) {
		e.Stop()
		return nil, nil
	}, dispatcher.Logged())
}

// Run processes events until ctx is done or Close is called.
func (s *Service) Run(ctx context.Context) error {
	return s.d.Run(ctx)
}

// Close stops the mailbox and ends every published stream.
func (s *Service) Close() {
	s.d.Close()
	s.engine.Close()
}

// Telemetry from the vehicle link. These never wait for the engine.

// OnConnection posts a vehicle connection change.
func (s *Service) OnConnection(connected bool) error {
	return s.post(EventConnection, connected)
}

// OnFlyingState posts a flight phase update.
func (s *Service) OnFlyingState(f core.FlyingState) error {
	return s.post(EventFlyingState, f)
}

// OnGuided posts a guided-motion capability update.
func (s *Service) OnGuided(snap *core.GuidedSnapshot) error {
	return s.post(EventGuided, snap)
}

// OnPOI posts a point-of-interest capability update.
func (s *Service) OnPOI(snap *core.POISnapshot) error {
	return s.post(EventPOI, snap)
}

// OnAltimeter posts an altimeter reading. Dropped when the mailbox is full.
func (s *Service) OnAltimeter(a core.Altimeter) error {
	return s.post(EventAltimeter, a)
}

// OnPosition posts a drone pose. Dropped when the mailbox is full.
func (s *Service) OnPosition(p *core.Pose) error {
	return s.post(EventPosition, p)
}

// OnReturnHome posts a return-to-home activity change.
func (s *Service) OnReturnHome(active bool) error {
	return s.post(EventReturnHome, active)
}

// Sample asks for the once-per-second elapsed time sample.
func (s *Service) Sample() error {
	return s.post(EventSample, nil)
}

func (s *Service) post(kind string, payload any) error {
	return s.d.Post(dispatcher.Event{Kind: kind, Payload: payload})
}

// User commands.

// SetWaypoint replaces the target with a waypoint. See Engine.SetWaypoint.
func (s *Service) SetWaypoint(ctx context.Context, loc core.Location, altitude *float64) error {
	return s.call(ctx, EventSetWaypoint, placement{Location: loc, Altitude: altitude})
}

// MoveWaypoint moves the held waypoint.
func (s *Service) MoveWaypoint(ctx context.Context, loc core.Location, altitude *float64) error {
	return s.call(ctx, EventMoveWaypoint, placement{Location: loc, Altitude: altitude})
}

// SetPOI replaces the target with a point of interest.
func (s *Service) SetPOI(ctx context.Context, loc core.Location, altitude *float64) error {
	return s.call(ctx, EventSetPOI, placement{Location: loc, Altitude: altitude})
}

// MovePOI moves the held point of interest.
func (s *Service) MovePOI(ctx context.Context, loc core.Location, altitude *float64) error {
	return s.call(ctx, EventMovePOI, placement{Location: loc, Altitude: altitude})
}

// SetSpeed sets the waypoint cruise speed.
func (s *Service) SetSpeed(ctx context.Context, v float64) error {
	return s.call(ctx, EventSetSpeed, v)
}

// SetAltitude pins the target altitude.
func (s *Service) SetAltitude(ctx context.Context, v float64) error {
	return s.call(ctx, EventSetAltitude, v)
}

// Clear drops the target without commanding the vehicle.
func (s *Service) Clear(ctx context.Context) error {
	return s.call(ctx, EventClear, nil)
}

// Start dispatches the held target.
func (s *Service) Start(ctx context.Context) error {
	return s.call(ctx, EventStart, nil)
}

// Stop clears the target and deactivates the vehicle capabilities.
func (s *Service) Stop(ctx context.Context) error {
	return s.call(ctx, EventStop, nil)
}

func (s *Service) call(ctx context.Context, kind string, payload any) error {
	_, err := s.d.Call(ctx, dispatcher.Event{Kind: kind, Payload: payload})
	return err
}

// Frames run on the caller's goroutine against the published snapshot.

// FrameUpdate projects the target onto one frame. See Engine.FrameUpdate.
func (s *Service) FrameUpdate(hint progress.FrameHint) core.StreamElement {
	return s.engine.FrameUpdate(hint)
}

// ProjectScreenPointToPOI resolves a tap into a point-of-interest location.
func (s *Service) ProjectScreenPointToPOI(pt core.ScreenPoint, hint progress.FrameHint) *core.Location {
	return s.engine.ProjectScreenPointToPOI(pt, hint)
}

// ProjectScreenPointToWaypoint resolves a tap into a waypoint location.
func (s *Service) ProjectScreenPointToWaypoint(pt core.ScreenPoint, hint progress.FrameHint) *core.Location {
	return s.engine.ProjectScreenPointToWaypoint(pt, hint)
}

// Observables. Each call adds a subscription; release it with
// Unsubscribe.

// RunningState subscribes to the running state.
func (s *Service) RunningState() channel.Receiver[core.RunningState] {
	return s.engine.RunningState().Subscribe()
}

// Target subscribes to the active target.
func (s *Service) Target() channel.Receiver[core.Target] {
	return s.engine.Target().Subscribe()
}

// Progress subscribes to the waypoint progress fraction.
func (s *Service) Progress() channel.Receiver[float64] {
	return s.engine.Progress().Subscribe()
}

// Elapsed subscribes to the session elapsed time.
func (s *Service) Elapsed() channel.Receiver[Elapsed] {
	return s.engine.Elapsed().Subscribe()
}

// Stream subscribes to the per-frame projection.
func (s *Service) Stream() channel.Receiver[core.StreamElement] {
	return s.engine.Stream().Subscribe()
}

// Getters for the latest published values.

// CurrentState returns the latest running state.
func (s *Service) CurrentState() core.RunningState { return s.engine.RunningState().Load() }

// CurrentTarget returns the latest active target.
func (s *Service) CurrentTarget() core.Target { return s.engine.Target().Load() }

// WaypointLocation returns the waypoint location, nil if no waypoint is held.
func (s *Service) WaypointLocation() *core.Location {
	t := s.CurrentTarget()
	if !t.IsWaypoint() {
		return nil
	}
	return &t.Location
}

// POILocation returns the point-of-interest location, nil if none is held.
func (s *Service) POILocation() *core.Location {
	t := s.CurrentTarget()
	if !t.IsPOI() {
		return nil
	}
	return &t.Location
}

// Speed returns the waypoint cruise speed.
func (s *Service) Speed() float64 { return s.CurrentTarget().Speed }

// Altitude returns the target altitude.
func (s *Service) Altitude() float64 { return s.CurrentTarget().Altitude }

// CurrentProgress returns the latest progress fraction.
func (s *Service) CurrentProgress() float64 { return s.engine.Progress().Load() }

// CurrentElapsed returns the latest elapsed time sample.
func (s *Service) CurrentElapsed() Elapsed { return s.engine.Elapsed().Load() }
