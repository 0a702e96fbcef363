// Package touchfly is the Touch-and-Fly guidance core. Engine holds the
// state machine and must be driven from one goroutine; Service wraps it in
// a serialized mailbox for concurrent callers.
package touchfly

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/OCAP2/touchfly/internal/blocker"
	"github.com/OCAP2/touchfly/internal/channel"
	"github.com/OCAP2/touchfly/internal/guidance"
	"github.com/OCAP2/touchfly/internal/progress"
	"github.com/OCAP2/touchfly/internal/projection"
	"github.com/OCAP2/touchfly/internal/runstate"
	"github.com/OCAP2/touchfly/internal/target"
	"github.com/OCAP2/touchfly/internal/watcher"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidLocation is returned for a coordinate outside WGS84 bounds.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrInvalidSpeed is returned for a non-positive or non-finite speed.
	ErrInvalidSpeed = errors.New("invalid speed")
	// ErrInvalidAltitude is returned for a non-finite altitude.
	ErrInvalidAltitude = errors.New("invalid altitude")
)

// Journal receives guidance session boundaries.
type Journal interface {
	Started(r core.SessionRecord)
	Ended(r core.SessionRecord)
}

// Metrics receives state and progress samples.
type Metrics interface {
	RecordState(s core.RunningState, at time.Time)
	RecordProgress(fraction, remaining float64, at time.Time)
	RecordCommand(command string, at time.Time)
}

// Config holds the engine settings. HorizontalFOV and AspectRatio fill in
// frame hints that leave them zero.
type Config struct {
	Target        target.Config
	Guidance      guidance.Config
	HorizontalFOV float64
	AspectRatio   float64
}

// Deps are the engine collaborators. Only Commander and Projector are
// required.
type Deps struct {
	Commander  guidance.Commander
	Projector  projection.Projector
	Advisories progress.AdvisorySink
	Clock      guidance.Clock
	Journal    Journal
	Metrics    Metrics
	Logger     zerolog.Logger
}

// Elapsed is the time spent in the active guidance session.
type Elapsed struct {
	Duration time.Duration
	Active   bool
}

// Engine is the synchronous Touch-and-Fly core. Its command and telemetry
// methods are not safe for concurrent use; the published values and the
// frame methods are.
type Engine struct {
	cfg     Config
	clock   guidance.Clock
	logger  zerolog.Logger
	journal Journal
	metrics Metrics

	store     *target.Store
	guided    *watcher.Guided
	reacquire watcher.Reacquire
	guide     *guidance.Guide
	projector *progress.Projector

	connected  bool
	flying     core.FlyingState
	guidedSnap *core.GuidedSnapshot
	poiSnap    *core.POISnapshot
	guidedItf  core.InterfaceState
	poiItf     core.InterfaceState
	altimeter  core.Altimeter
	pose       *core.Pose
	rthActive  bool
	state      core.RunningState

	sessionID uint64
	record    *core.SessionRecord

	runningState *channel.Value[core.RunningState]
	target       *channel.Value[core.Target]
	progress     *channel.Value[float64]
	elapsed      *channel.Value[Elapsed]
	stream       *channel.Value[core.StreamElement]
	snapshot     *channel.Value[progress.Snapshot]
}

// New creates an Engine for a disconnected vehicle.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Commander == nil {
		return nil, errors.New("commander is required")
	}
	if deps.Projector == nil {
		return nil, errors.New("projector is required")
	}
	if deps.Clock == nil {
		deps.Clock = guidance.WallClock
	}

	e := &Engine{
		cfg:       cfg,
		clock:     deps.Clock,
		logger:    deps.Logger,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		store:     target.New(cfg.Target),
		guided:    watcher.NewGuided(),
		guidedItf: core.DisconnectedInterface,
		poiItf:    core.DisconnectedInterface,
		state:     core.NoTargetState(false),
	}

	cmd := deps.Commander
	if deps.Metrics != nil {
		cmd = &meteredCommander{next: cmd, metrics: deps.Metrics, clock: deps.Clock}
	}

	var err error
	e.guide, err = guidance.New(cmd, deps.Clock, cfg.Guidance, deps.Logger.With().Str("component", "guidance").Logger())
	if err != nil {
		return nil, fmt.Errorf("creating guide: %w", err)
	}
	e.projector, err = progress.NewProjector(deps.Projector, deps.Advisories, deps.Logger.With().Str("component", "projection").Logger())
	if err != nil {
		return nil, fmt.Errorf("creating projector: %w", err)
	}

	e.runningState = channel.NewComparable(e.state)
	e.target = channel.NewComparable(core.NoTarget())
	e.progress = channel.NewComparable(0.0)
	e.elapsed = channel.NewComparable(Elapsed{})
	e.stream = channel.NewComparable(core.StreamElement{})
	e.snapshot = channel.NewValue(progress.Snapshot{}, nil)
	return e, nil
}

// RunningState is the published running state.
func (e *Engine) RunningState() *channel.Value[core.RunningState] { return e.runningState }

// Target is the published active target.
func (e *Engine) Target() *channel.Value[core.Target] { return e.target }

// Progress is the published waypoint progress fraction.
func (e *Engine) Progress() *channel.Value[float64] { return e.progress }

// Elapsed is the published session time, sampled once per second.
func (e *Engine) Elapsed() *channel.Value[Elapsed] { return e.elapsed }

// Stream is the published per-frame projection of the target.
func (e *Engine) Stream() *channel.Value[core.StreamElement] { return e.stream }

// Close ends every published stream.
func (e *Engine) Close() {
	e.runningState.Close()
	e.target.Close()
	e.progress.Close()
	e.elapsed.Close()
	e.stream.Close()
	e.snapshot.Close()
}

// Telemetry

// OnConnection handles the vehicle connecting or disconnecting. A
// disconnection resets both interfaces and drops the pose, but keeps the
// target so that a reconnection can resume it.
func (e *Engine) OnConnection(connected bool) {
	if connected == e.connected {
		return
	}
	e.connected = connected
	e.logger.Info().Bool("connected", connected).Msg("vehicle connection changed")
	if !connected {
		e.guidedSnap = nil
		e.poiSnap = nil
		e.guidedItf = e.guided.Observe(nil, e.flying, false).State
		e.poiItf = core.DisconnectedInterface
		e.guide.ObserveGuided(false)
		e.guide.ObservePOI(false)
		e.pose = nil
		e.rthActive = false
		e.flying = core.FlyingStateLanded
		e.reacquire.Reset()
		if e.guide.Reset() != nil {
			e.endSession(core.OutcomeDisconnected)
		}
		e.stream.Publish(core.StreamElement{})
		e.publishSnapshot()
	}
	e.recompute()
}

// OnFlyingState handles a flight phase update.
func (e *Engine) OnFlyingState(f core.FlyingState) {
	prev := e.flying
	e.flying = f
	e.reacquire.Flying(prev, f)
	if prev != f {
		e.logger.Debug().Stringer("from", prev).Stringer("to", f).Msg("flying state changed")
	}
	// blockers depend on the flight phase
	if e.guidedSnap != nil {
		e.guidedItf.Blocker = blocker.ForFlyingState(blocker.FirstGuided(e.guidedSnap.Issues), f)
	}
	if e.poiSnap != nil {
		e.poiItf.Blocker = blocker.ForFlyingState(blocker.FirstPOI(e.poiSnap.Issues), f)
	}
	e.recompute()
	e.tryReacquire()
}

// OnGuided handles a guided-motion capability update; nil means the
// capability is not exposed.
func (e *Engine) OnGuided(snap *core.GuidedSnapshot) {
	e.guidedSnap = snap
	res := e.guided.Observe(snap, e.flying, e.reacquire.Open())
	e.guidedItf = res.State
	e.guide.ObserveGuided(res.State.InProgress)

	if res.Reached && !res.State.InProgress && e.store.ClearWaypoint() {
		e.logger.Info().Msg("waypoint reached")
		e.guide.Reset()
		e.endSession(core.OutcomeReached)
		e.publishTarget()
	}
	if res.Readback != nil && e.store.Kind() != core.TargetPOI {
		if e.store.Sync(*res.Readback) {
			e.publishTarget()
		}
		if e.guide.Adopt(e.store.Target(), e.position()) {
			e.logger.Info().Msg("adopted active guided flight")
			e.startSession()
		}
	}
	e.recompute()
}

// OnPOI handles a point-of-interest capability update; nil means the
// capability is not exposed.
func (e *Engine) OnPOI(snap *core.POISnapshot) {
	e.poiSnap = snap
	res := watcher.ObservePOI(snap, e.flying, e.store.Kind())
	e.poiItf = res.State
	e.guide.ObservePOI(snap != nil && snap.State == core.CapabilityActive && snap.Current != nil)

	if res.Readback != nil && e.store.Sync(*res.Readback) {
		e.publishTarget()
	}
	e.recompute()
	e.tryReacquire()
}

// OnAltimeter handles an altimeter update.
func (e *Engine) OnAltimeter(a core.Altimeter) {
	e.altimeter = core.Altimeter{TakeoffRelative: copyFloat(a.TakeoffRelative), Absolute: copyFloat(a.Absolute)}
	e.store.SetDroneAltitude(a.TakeoffRelative)
	e.publishTarget()
}

// OnPosition handles a drone position update; nil means unknown.
func (e *Engine) OnPosition(p *core.Pose) {
	if p != nil && !p.Location.Valid() {
		p = nil
	}
	if p != nil {
		c := *p
		p = &c
	}
	e.pose = p
	e.publishSnapshot()
	e.updateProgress()
}

// OnReturnHome handles the return-to-home capability becoming active or
// inactive.
func (e *Engine) OnReturnHome(active bool) {
	e.rthActive = active
	e.tryReacquire()
}

// Sample publishes the session elapsed time. It is called once per second.
func (e *Engine) Sample() {
	d, ok := e.guide.Elapsed()
	e.elapsed.Publish(Elapsed{Duration: d.Truncate(time.Second), Active: ok})
}

// Commands

// SetWaypoint replaces the target with a waypoint and dispatches it. A nil
// altitude tracks the drone altitude.
func (e *Engine) SetWaypoint(loc core.Location, altitude *float64) error {
	if err := checkTarget(loc, altitude); err != nil {
		return err
	}
	e.store.SetWaypoint(loc, altitude)
	e.targetChanged()
	e.dispatchWaypoint()
	return nil
}

// MoveWaypoint moves the waypoint, keeping the altitude mode unless an
// altitude is given.
func (e *Engine) MoveWaypoint(loc core.Location, altitude *float64) error {
	if err := checkTarget(loc, altitude); err != nil {
		return err
	}
	e.store.MoveWaypoint(loc, altitude)
	e.targetChanged()
	e.dispatchWaypoint()
	return nil
}

// SetPOI replaces the target with a point of interest.
func (e *Engine) SetPOI(loc core.Location, altitude *float64) error {
	if err := checkTarget(loc, altitude); err != nil {
		return err
	}
	e.store.SetPOI(loc, altitude)
	e.targetChanged()
	e.dispatchPOI()
	return nil
}

// MovePOI moves the point of interest.
func (e *Engine) MovePOI(loc core.Location, altitude *float64) error {
	if err := checkTarget(loc, altitude); err != nil {
		return err
	}
	e.store.MovePOI(loc, altitude)
	e.targetChanged()
	e.dispatchPOI()
	return nil
}

// SetSpeed sets the waypoint cruise speed, re-dispatching a waypoint in
// flight so the speed applies mid-flight.
func (e *Engine) SetSpeed(v float64) error {
	if !e.store.SetSpeed(v) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, v)
	}
	e.publishTarget()
	if e.flyingToWaypoint() {
		e.execute()
	}
	return nil
}

// SetAltitude pins the target altitude. A running target is re-dispatched,
// a ready one is re-aimed, otherwise nothing is commanded.
func (e *Engine) SetAltitude(v float64) error {
	if err := checkAltitude(&v); err != nil {
		return err
	}
	e.store.SetAltitude(v)
	e.publishTarget()
	if !e.connected {
		return nil
	}
	t := e.store.Target()
	switch e.state.Kind {
	case core.KindRunning:
		switch {
		case e.flyingToWaypoint():
			e.execute()
		case t.IsWaypoint():
			e.guide.Watch(t)
		default:
			e.look()
		}
	case core.KindReady:
		if t.IsWaypoint() {
			e.guide.Watch(t)
		} else {
			e.look()
		}
	}
	return nil
}

// flyingToWaypoint reports whether the running state comes from our own
// waypoint flight. A point of interest still in progress after a waypoint
// replaced it also reads as running, but the waypoint is only watched.
func (e *Engine) flyingToWaypoint() bool {
	return e.store.Kind() == core.TargetWaypoint &&
		e.state.Kind == core.KindRunning &&
		e.guide.Mode() == guidance.ModeExecuting
}

// Clear drops the target and the session without commanding the vehicle.
func (e *Engine) Clear() {
	e.store.Clear()
	if e.guide.Reset() != nil {
		e.endSession(core.OutcomeCleared)
	}
	e.publishTarget()
	e.recompute()
}

// Start flies to the held waypoint or starts looking at the held point of
// interest, whatever the running state.
func (e *Engine) Start() {
	if !e.connected {
		return
	}
	switch e.store.Kind() {
	case core.TargetWaypoint:
		e.execute()
	case core.TargetPOI:
		e.look()
	}
}

// Stop clears the target and deactivates whatever the vehicle holds.
func (e *Engine) Stop() {
	e.store.Clear()
	if e.guide.Stop() != nil {
		e.endSession(core.OutcomeStopped)
	}
	e.publishTarget()
	e.recompute()
}

// Frames. These only read published state.

// FrameUpdate projects the active target onto one video frame and
// publishes the result.
func (e *Engine) FrameUpdate(hint progress.FrameHint) core.StreamElement {
	el := e.projector.Frame(e.snapshot.Load(), e.frameHint(hint))
	e.stream.Publish(el)
	return el
}

// ProjectScreenPointToPOI resolves a tapped point into a point-of-interest
// location, or nil.
func (e *Engine) ProjectScreenPointToPOI(pt core.ScreenPoint, hint progress.FrameHint) *core.Location {
	return e.projector.ToPOI(e.snapshot.Load(), pt, e.frameHint(hint))
}

// ProjectScreenPointToWaypoint resolves a tapped point into a waypoint
// location, or nil.
func (e *Engine) ProjectScreenPointToWaypoint(pt core.ScreenPoint, hint progress.FrameHint) *core.Location {
	return e.projector.ToWaypoint(e.snapshot.Load(), pt, e.frameHint(hint))
}

func (e *Engine) frameHint(h progress.FrameHint) progress.FrameHint {
	if h.HorizontalFOV == 0 {
		h.HorizontalFOV = e.cfg.HorizontalFOV
	}
	if h.AspectRatio == 0 {
		h.AspectRatio = e.cfg.AspectRatio
	}
	return h
}

// dispatch

// dispatchWaypoint flies to the waypoint when the vehicle can fly and no
// point of interest is in progress, and only aims at it otherwise.
func (e *Engine) dispatchWaypoint() {
	if !e.connected {
		return
	}
	if runstate.CanFly(e.state) && !e.poiItf.InProgress {
		e.execute()
		return
	}
	e.logger.Debug().
		Stringer("state", e.state).
		Bool("poiInProgress", e.poiItf.InProgress).
		Bool("altitudePinned", e.store.Pinned()).
		Msg("watching waypoint")
	if s := e.guide.Session(); s != nil && s.Target != e.store.Location() {
		e.guide.Reset()
		e.endSession(core.OutcomeReplaced)
	}
	e.guide.Watch(e.store.Target())
}

// dispatchPOI looks at the point of interest when the vehicle can fly.
// Otherwise it waits for re-acquisition.
func (e *Engine) dispatchPOI() {
	if !e.connected || !runstate.CanFly(e.state) {
		if e.guide.Session() != nil {
			e.guide.Reset()
			e.endSession(core.OutcomeReplaced)
		}
		return
	}
	e.look()
}

func (e *Engine) execute() {
	if replaced := e.guide.Execute(e.store.Target(), e.position()); replaced != nil {
		e.endSession(core.OutcomeReplaced)
		e.startSession()
	} else if e.record == nil {
		e.startSession()
	}
	e.updateProgress()
}

func (e *Engine) look() {
	if e.guide.Look(e.store.Target()) != nil {
		e.endSession(core.OutcomeReplaced)
	}
}

func (e *Engine) tryReacquire() {
	if !e.connected {
		return
	}
	if e.reacquire.Fire(e.store.Kind(), e.rthActive, e.poiItf.InProgress) {
		e.logger.Info().Stringer("target", e.store.Kind()).Msg("re-acquiring target after takeoff")
		e.Start()
	}
}

// publication

func (e *Engine) targetChanged() {
	e.publishTarget()
	e.recompute()
}

func (e *Engine) publishTarget() {
	e.target.Publish(e.store.Target())
	e.publishSnapshot()
}

func (e *Engine) publishSnapshot() {
	var pose *core.Pose
	if e.pose != nil {
		p := *e.pose
		pose = &p
	}
	e.snapshot.Publish(progress.Snapshot{
		Target:           e.store.Target(),
		Pose:             pose,
		RelativeAltitude: copyFloat(e.altimeter.TakeoffRelative),
		AbsoluteAltitude: copyFloat(e.altimeter.Absolute),
	})
}

func (e *Engine) recompute() {
	next := runstate.Compute(runstate.Inputs{
		Target:    e.store.Kind(),
		Guided:    e.guidedItf,
		POI:       e.poiItf,
		Connected: e.connected,
	})
	if next == e.state {
		return
	}
	e.logger.Debug().Stringer("from", e.state).Stringer("to", next).Msg("running state changed")
	e.state = next
	e.runningState.Publish(next)
	if e.metrics != nil {
		e.metrics.RecordState(next, e.clock.Now())
	}
	e.updateProgress()
}

func (e *Engine) updateProgress() {
	s := e.guide.Session()
	if e.state.Kind != core.KindRunning || e.store.Kind() != core.TargetWaypoint || s == nil {
		e.progress.Publish(0)
		return
	}
	pos := e.position()
	fraction := progress.Fraction(s.StartPosition, pos, s.Target)
	e.progress.Publish(fraction)
	if remaining, ok := progress.Remaining(pos, s.Target); ok && e.metrics != nil {
		e.metrics.RecordProgress(fraction, remaining, e.clock.Now())
	}
}

// journal

func (e *Engine) startSession() {
	s := e.guide.Session()
	if s == nil {
		return
	}
	e.sessionID++
	t := e.store.Target()
	e.record = &core.SessionRecord{
		ID:        e.sessionID,
		Target:    s.Target,
		Altitude:  t.Altitude,
		Speed:     t.Speed,
		Start:     s.StartPosition,
		StartedAt: s.StartTime,
	}
	e.logger.Info().
		Uint64("session", e.record.ID).
		Float64("lat", s.Target.Latitude).
		Float64("lon", s.Target.Longitude).
		Msg("guidance session started")
	if e.journal != nil {
		e.journal.Started(*e.record)
	}
}

func (e *Engine) endSession(outcome core.Outcome) {
	if e.record == nil {
		return
	}
	r := *e.record
	e.record = nil
	r.EndedAt = e.clock.Now()
	r.Outcome = outcome
	e.logger.Info().Uint64("session", r.ID).Str("outcome", string(outcome)).Msg("guidance session ended")
	if e.journal != nil {
		e.journal.Ended(r)
	}
	e.elapsed.Publish(Elapsed{})
}

// helpers

func (e *Engine) position() *core.Location {
	if e.pose == nil {
		return nil
	}
	l := e.pose.Location
	return &l
}

func checkTarget(loc core.Location, altitude *float64) error {
	if !loc.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidLocation, loc)
	}
	return checkAltitude(altitude)
}

func checkAltitude(v *float64) error {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return fmt.Errorf("%w: %v", ErrInvalidAltitude, *v)
	}
	return nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// meteredCommander counts vehicle commands into Metrics.
type meteredCommander struct {
	next    guidance.Commander
	metrics Metrics
	clock   guidance.Clock
}

func (c *meteredCommander) MoveTo(d core.MoveDirective) {
	c.metrics.RecordCommand("moveTo", c.clock.Now())
	c.next.MoveTo(d)
}

func (c *meteredCommander) DeactivateGuided() {
	c.metrics.RecordCommand("deactivateGuided", c.clock.Now())
	c.next.DeactivateGuided()
}

func (c *meteredCommander) StartPOI(p core.PointDirective) {
	c.metrics.RecordCommand("startPOI", c.clock.Now())
	c.next.StartPOI(p)
}

func (c *meteredCommander) DeactivatePOI() {
	c.metrics.RecordCommand("deactivatePOI", c.clock.Now())
	c.next.DeactivatePOI()
}
