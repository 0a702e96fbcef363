// Package target holds the single Touch-and-Fly target: user intent, merged
// with vehicle-reported truth while a directive is active.
package target

import (
	"math"

	"github.com/OCAP2/touchfly/pkg/core"
)

// Config holds the store defaults.
type Config struct {
	// DefaultAltitude is used for waypoints when neither a pinned altitude
	// nor an altimeter reading is available.
	DefaultAltitude float64
	// POIAltitude is the altitude of a point of interest that was placed
	// without one.
	POIAltitude float64
	// DefaultSpeed is the initial waypoint cruise speed.
	DefaultSpeed float64
}

// Store is the Target Store. It is not safe for concurrent use; the engine
// owns it from a single goroutine.
type Store struct {
	cfg Config

	kind     core.TargetKind
	location core.Location
	speed    float64

	// pinned is the explicitly chosen altitude, nil while tracking.
	pinned *float64
	// droneAltitude is the last take-off-relative altimeter reading.
	droneAltitude *float64
}

// Readback is a directive the vehicle reports as active.
type Readback struct {
	Kind     core.TargetKind
	Location core.Location
	Altitude float64
	// Speed is nil when the directive carries no speed (points of interest).
	Speed *float64
}

// New creates an empty store.
func New(cfg Config) *Store {
	return &Store{cfg: cfg, speed: cfg.DefaultSpeed}
}

// SetWaypoint replaces the target with a waypoint. Without an altitude the
// waypoint tracks the drone's altitude until one is set.
func (s *Store) SetWaypoint(loc core.Location, altitude *float64) {
	s.kind = core.TargetWaypoint
	s.location = loc
	s.pinned = copyFloat(altitude)
}

// MoveWaypoint updates the waypoint location, keeping the altitude mode
// unless an altitude is given.
func (s *Store) MoveWaypoint(loc core.Location, altitude *float64) {
	s.kind = core.TargetWaypoint
	s.location = loc
	if altitude != nil {
		s.pinned = copyFloat(altitude)
	}
}

// SetPOI replaces the target with a point of interest.
func (s *Store) SetPOI(loc core.Location, altitude *float64) {
	s.kind = core.TargetPOI
	s.location = loc
	s.pinned = copyFloat(altitude)
}

// MovePOI updates the point of interest location.
func (s *Store) MovePOI(loc core.Location, altitude *float64) {
	s.kind = core.TargetPOI
	s.location = loc
	if altitude != nil {
		s.pinned = copyFloat(altitude)
	}
}

// SetSpeed sets the waypoint cruise speed. Non-positive or non-finite values
// are ignored and false is returned.
func (s *Store) SetSpeed(v float64) bool {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	s.speed = v
	return true
}

// SetAltitude pins the target altitude.
func (s *Store) SetAltitude(v float64) {
	s.pinned = &v
}

// SetDroneAltitude records the live take-off-relative altitude.
func (s *Store) SetDroneAltitude(relative *float64) {
	s.droneAltitude = copyFloat(relative)
}

// Clear drops the target and any pinned altitude. Speed is kept.
func (s *Store) Clear() {
	s.kind = core.TargetNone
	s.location = core.Location{}
	s.pinned = nil
}

// ClearWaypoint clears the target only if it is a waypoint.
func (s *Store) ClearWaypoint() bool {
	if s.kind != core.TargetWaypoint {
		return false
	}
	s.Clear()
	return true
}

// Sync overwrites user intent with vehicle truth. It is only called while
// the vehicle confirms an active directive. Returns whether anything changed.
func (s *Store) Sync(r Readback) bool {
	if r.Kind == core.TargetNone {
		return false
	}
	changed := s.kind != r.Kind || s.location != r.Location ||
		s.pinned == nil || *s.pinned != r.Altitude
	s.kind = r.Kind
	s.location = r.Location
	alt := r.Altitude
	s.pinned = &alt
	if r.Speed != nil && *r.Speed > 0 && *r.Speed != s.speed {
		s.speed = *r.Speed
		changed = true
	}
	return changed
}

// Kind returns the held target kind.
func (s *Store) Kind() core.TargetKind { return s.kind }

// Location returns the held location; zero when no target is held.
func (s *Store) Location() core.Location { return s.location }

// Speed returns the waypoint cruise speed.
func (s *Store) Speed() float64 { return s.speed }

// Pinned reports whether the altitude was explicitly chosen.
func (s *Store) Pinned() bool { return s.pinned != nil }

// Altitude returns the target altitude: the pinned value, else the fixed
// POI altitude for points of interest, else the drone altitude rounded to
// the meter, else the configured default.
func (s *Store) Altitude() float64 {
	if s.pinned != nil {
		return *s.pinned
	}
	if s.kind == core.TargetPOI {
		return s.cfg.POIAltitude
	}
	if s.droneAltitude != nil {
		return math.Round(*s.droneAltitude)
	}
	return s.cfg.DefaultAltitude
}

// Target returns the resolved target.
func (s *Store) Target() core.Target {
	switch s.kind {
	case core.TargetWaypoint:
		return core.Waypoint(s.location, s.Altitude(), s.speed)
	case core.TargetPOI:
		return core.PointOfInterest(s.location, s.Altitude())
	default:
		return core.NoTarget()
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
