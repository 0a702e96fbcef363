// pkg/core/target.go
package core

// TargetKind identifies which directive, if any, Touch-and-Fly holds.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetWaypoint
	TargetPOI
)

func (k TargetKind) String() string {
	switch k {
	case TargetWaypoint:
		return "waypoint"
	case TargetPOI:
		return "poi"
	default:
		return "none"
	}
}

// Target is the single active Touch-and-Fly target.
// Altitude is in meters relative to take-off. Speed only applies to waypoints.
type Target struct {
	Kind     TargetKind
	Location Location
	Altitude float64
	Speed    float64
}

// NoTarget returns the empty target.
func NoTarget() Target {
	return Target{Kind: TargetNone}
}

// Waypoint returns a fly-to target.
func Waypoint(loc Location, altitude, speed float64) Target {
	return Target{Kind: TargetWaypoint, Location: loc, Altitude: altitude, Speed: speed}
}

// PointOfInterest returns a look-at target.
func PointOfInterest(loc Location, altitude float64) Target {
	return Target{Kind: TargetPOI, Location: loc, Altitude: altitude}
}

// IsNone reports whether no target is held.
func (t Target) IsNone() bool { return t.Kind == TargetNone }

// IsWaypoint reports whether the target is a waypoint.
func (t Target) IsWaypoint() bool { return t.Kind == TargetWaypoint }

// IsPOI reports whether the target is a point of interest.
func (t Target) IsPOI() bool { return t.Kind == TargetPOI }
