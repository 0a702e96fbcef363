// Package sim is a simulated drone. It accepts guidance commands and
// reports telemetry the way a real vehicle link would.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/OCAP2/touchfly/internal/geo"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
)

// Telemetry receives the simulated vehicle updates.
type Telemetry interface {
	OnConnection(connected bool) error
	OnFlyingState(f core.FlyingState) error
	OnGuided(snap *core.GuidedSnapshot) error
	OnPOI(snap *core.POISnapshot) error
	OnAltimeter(a core.Altimeter) error
	OnPosition(p *core.Pose) error
	OnReturnHome(active bool) error
}

// Config describes the simulated vehicle.
type Config struct {
	Home            core.Location
	GroundAltitude  float64 // absolute altitude of the take-off point
	TakeoffAltitude float64 // relative altitude where take-off completes
	ClimbRate       float64 // m/s during take-off and landing
}

// DefaultConfig returns a drone parked at home.
func DefaultConfig(home core.Location) Config {
	return Config{
		Home:            home,
		GroundAltitude:  35,
		TakeoffAltitude: 2,
		ClimbRate:       1,
	}
}

// Drone is a simulated vehicle. Commands only record intent; Step advances
// the simulation and reports telemetry, so commands never call back into
// the caller.
type Drone struct {
	cfg    Config
	out    Telemetry
	logger zerolog.Logger

	mu          sync.Mutex
	connected   bool
	phase       core.FlyingState
	position    core.Location
	heading     float64
	relAltitude float64
	rth         bool
	guided      *core.MoveDirective
	finishedSeq uint64
	finishedOK  bool
	poi         *core.PointDirective

	reported reported
}

// reported tracks what was last sent so Step only emits changes.
type reported struct {
	valid     bool
	connected bool
	phase     core.FlyingState
	rth       bool
}

// New creates a disconnected, landed drone at cfg.Home. Telemetry is
// discarded until Attach is called.
func New(cfg Config, log zerolog.Logger) *Drone {
	if cfg.ClimbRate <= 0 {
		cfg.ClimbRate = 1
	}
	return &Drone{
		cfg:      cfg,
		logger:   log,
		phase:    core.FlyingStateLanded,
		position: cfg.Home,
	}
}

// Attach sets the telemetry receiver and makes the next Step report the
// full state.
func (d *Drone) Attach(out Telemetry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = out
	d.reported = reported{}
}

// MoveTo starts flying the directive.
func (d *Drone) MoveTo(dir core.MoveDirective) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.canFly() {
		d.logger.Debug().Msg("sim: moveTo ignored, not flying")
		return
	}
	cp := dir
	d.guided = &cp
	d.poi = nil
}

// DeactivateGuided aborts the current flight.
func (d *Drone) DeactivateGuided() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.guided != nil {
		d.finish(false)
	}
}

// StartPOI starts looking at p.
func (d *Drone) StartPOI(p core.PointDirective) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.canFly() {
		d.logger.Debug().Msg("sim: startPOI ignored, not flying")
		return
	}
	cp := p
	d.poi = &cp
	if d.guided != nil {
		d.finish(false)
	}
}

// DeactivatePOI stops looking at the point of interest.
func (d *Drone) DeactivatePOI() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.poi = nil
}

// Connect links the drone.
func (d *Drone) Connect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
}

// Disconnect drops the link. The drone keeps its physical state.
func (d *Drone) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
}

// TakeOff starts climbing from the ground.
func (d *Drone) TakeOff() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == core.FlyingStateLanded {
		d.phase = core.FlyingStateTakingOff
	}
}

// Land starts descending and cancels every directive.
func (d *Drone) Land() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == core.FlyingStateLanded {
		return
	}
	d.phase = core.FlyingStateLanding
	if d.guided != nil {
		d.finish(false)
	}
	d.poi = nil
}

// SetReturnHome toggles return-to-home.
func (d *Drone) SetReturnHome(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rth = active
	if active {
		if d.guided != nil {
			d.finish(false)
		}
		d.poi = nil
	}
}

// Phase returns the current flight phase.
func (d *Drone) Phase() core.FlyingState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Position returns the current location and relative altitude.
func (d *Drone) Position() (core.Location, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position, d.relAltitude
}

// Busy reports whether a guided flight is in progress.
func (d *Drone) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.guided != nil
}

// Step advances the simulation by dt and reports telemetry.
func (d *Drone) Step(dt time.Duration) {
	d.mu.Lock()
	d.advance(dt.Seconds())
	var msgs []func() error
	if d.out != nil {
		msgs = d.snapshot()
	}
	d.mu.Unlock()

	for _, m := range msgs {
		if err := m(); err != nil {
			d.logger.Debug().Err(err).Msg("sim: telemetry not delivered")
		}
	}
}

// Run steps the simulation every tick until ctx is done.
func (d *Drone) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Step(tick)
		}
	}
}

func (d *Drone) canFly() bool {
	return d.phase.IsFlyingOrWaiting() && !d.rth
}

func (d *Drone) finish(success bool) {
	d.guided = nil
	d.finishedSeq++
	d.finishedOK = success
	if d.phase == core.FlyingStateFlying {
		d.phase = core.FlyingStateWaiting
	}
}

func (d *Drone) advance(secs float64) {
	switch d.phase {
	case core.FlyingStateTakingOff:
		d.relAltitude += d.cfg.ClimbRate * secs
		if d.relAltitude >= d.cfg.TakeoffAltitude {
			d.relAltitude = d.cfg.TakeoffAltitude
			d.phase = core.FlyingStateWaiting
		}
	case core.FlyingStateLanding, core.FlyingStateEmergencyLanding:
		d.relAltitude -= d.cfg.ClimbRate * secs
		if d.relAltitude <= 0 {
			d.relAltitude = 0
			d.phase = core.FlyingStateLanded
			d.rth = false
		}
	case core.FlyingStateFlying, core.FlyingStateWaiting:
		if d.rth {
			d.flyHome(secs)
			return
		}
		if d.guided != nil {
			d.phase = core.FlyingStateFlying
			if d.fly(d.guided.Location, d.guided.Altitude, d.guided.HorizontalSpeed, d.guided.VerticalSpeed, secs) {
				d.finish(true)
			} else if d.guided.Orientation == core.OrientationToTarget {
				d.face(d.guided.Location)
			}
		}
		if d.poi != nil {
			d.face(d.poi.Location)
		}
	}
}

func (d *Drone) flyHome(secs float64) {
	d.phase = core.FlyingStateFlying
	if d.fly(d.cfg.Home, d.relAltitude, 10, d.cfg.ClimbRate, secs) {
		d.phase = core.FlyingStateLanding
	}
}

// fly moves toward loc and altitude and reports arrival.
func (d *Drone) fly(loc core.Location, altitude, hSpeed, vSpeed, secs float64) bool {
	frame, err := geo.NewLocalFrame(d.position)
	if err != nil {
		return true
	}
	east, north, err := frame.Offset(loc)
	if err != nil {
		return true
	}

	horizontal := math.Hypot(east, north)
	step := hSpeed * secs
	if horizontal <= step || horizontal < 0.01 {
		d.position = loc
	} else if next, err := frame.Locate(east*step/horizontal, north*step/horizontal); err == nil {
		d.position = next
	}

	dz := altitude - d.relAltitude
	vStep := math.Max(vSpeed, 0.1) * secs
	if math.Abs(dz) <= vStep {
		d.relAltitude = altitude
	} else {
		d.relAltitude += math.Copysign(vStep, dz)
	}

	return d.position == loc && d.relAltitude == altitude
}

func (d *Drone) face(loc core.Location) {
	frame, err := geo.NewLocalFrame(d.position)
	if err != nil {
		return
	}
	east, north, err := frame.Offset(loc)
	if err != nil || math.Hypot(east, north) < 0.01 {
		return
	}
	h := math.Atan2(east, north) * 180 / math.Pi
	if h < 0 {
		h += 360
	}
	d.heading = h
}

// snapshot builds the telemetry calls for the current state. The caller
// holds the lock; the calls run after it is released.
func (d *Drone) snapshot() []func() error {
	var msgs []func() error
	prev := d.reported

	if !prev.valid || prev.connected != d.connected {
		connected := d.connected
		msgs = append(msgs, func() error { return d.out.OnConnection(connected) })
	}
	if !d.connected {
		if !prev.valid || prev.connected {
			msgs = append(msgs,
				func() error { return d.out.OnGuided(nil) },
				func() error { return d.out.OnPOI(nil) },
				func() error { return d.out.OnPosition(nil) },
			)
		}
		d.reported = reported{valid: true, connected: false, phase: prev.phase, rth: prev.rth}
		return msgs
	}

	if !prev.valid || !prev.connected || prev.phase != d.phase {
		phase := d.phase
		msgs = append(msgs, func() error { return d.out.OnFlyingState(phase) })
	}
	if !prev.valid || !prev.connected || prev.rth != d.rth {
		rth := d.rth
		msgs = append(msgs, func() error { return d.out.OnReturnHome(rth) })
	}

	guided := d.guidedSnapshot()
	poi := d.poiSnapshot()
	rel := d.relAltitude
	abs := d.cfg.GroundAltitude + d.relAltitude
	pose := &core.Pose{Location: d.position, Heading: d.heading}
	msgs = append(msgs,
		func() error { return d.out.OnGuided(guided) },
		func() error { return d.out.OnPOI(poi) },
		func() error { return d.out.OnAltimeter(core.Altimeter{TakeoffRelative: &rel, Absolute: &abs}) },
		func() error { return d.out.OnPosition(pose) },
	)

	d.reported = reported{valid: true, connected: true, phase: d.phase, rth: d.rth}
	return msgs
}

func (d *Drone) guidedSnapshot() *core.GuidedSnapshot {
	snap := &core.GuidedSnapshot{State: core.CapabilityIdle}
	if d.finishedSeq > 0 {
		snap.LatestFinished = &core.FinishedFlight{Seq: d.finishedSeq, Success: d.finishedOK}
	}
	if !d.phase.IsFlyingOrWaiting() {
		snap.State = core.CapabilityUnavailable
		snap.Issues = []core.GuidedIssue{core.GuidedIssueDroneNotFlying}
		return snap
	}
	if d.guided != nil {
		snap.State = core.CapabilityActive
		snap.Current = &core.GuidedDirective{
			Location: d.guided.Location,
			Altitude: d.guided.Altitude,
			Speed:    d.guided.HorizontalSpeed,
		}
	}
	return snap
}

func (d *Drone) poiSnapshot() *core.POISnapshot {
	snap := &core.POISnapshot{State: core.CapabilityIdle}
	if !d.phase.IsFlyingOrWaiting() {
		snap.State = core.CapabilityUnavailable
		snap.Issues = []core.POIIssue{core.POIIssueDroneNotFlying}
		return snap
	}
	if d.poi != nil {
		p := *d.poi
		snap.State = core.CapabilityActive
		snap.Current = &p
	}
	return snap
}
