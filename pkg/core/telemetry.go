// pkg/core/telemetry.go
package core

// FlyingState is the flight phase reported by the flying indicators.
type FlyingState int

const (
	FlyingStateLanded FlyingState = iota
	FlyingStateTakingOff
	FlyingStateFlying
	FlyingStateWaiting
	FlyingStateLanding
	FlyingStateEmergencyLanding
)

func (f FlyingState) String() string {
	switch f {
	case FlyingStateLanded:
		return "landed"
	case FlyingStateTakingOff:
		return "takingOff"
	case FlyingStateFlying:
		return "flying"
	case FlyingStateWaiting:
		return "waiting"
	case FlyingStateLanding:
		return "landing"
	case FlyingStateEmergencyLanding:
		return "emergencyLanding"
	default:
		return "unknown"
	}
}

// IsFlyingOrWaiting reports whether the drone is airborne and not in a
// take-off or landing transition.
func (f FlyingState) IsFlyingOrWaiting() bool {
	return f == FlyingStateFlying || f == FlyingStateWaiting
}

// CapabilityState is the activation state of a vehicle capability.
type CapabilityState int

const (
	CapabilityUnavailable CapabilityState = iota
	CapabilityIdle
	CapabilityActive
)

func (c CapabilityState) String() string {
	switch c {
	case CapabilityIdle:
		return "idle"
	case CapabilityActive:
		return "active"
	default:
		return "unavailable"
	}
}

// GuidedIssue is a reason reported by the guided-motion capability for
// being unavailable. Lower values are reported first.
type GuidedIssue int

const (
	GuidedIssueDroneNotFlying GuidedIssue = iota
	GuidedIssueDroneNotCalibrated
	GuidedIssueDroneGpsInfoInaccurate
	GuidedIssueDroneOutOfGeofence
	GuidedIssueDroneTooCloseToGround
	GuidedIssueDroneAboveMaxAltitude
)

// POIIssue is a reason reported by the point-of-interest capability for
// being unavailable. Lower values are reported first.
type POIIssue int

const (
	POIIssueDroneNotFlying POIIssue = iota
	POIIssueDroneNotCalibrated
	POIIssueDroneGpsInfoInaccurate
	POIIssueDroneOutOfGeofence
	POIIssueDroneTooCloseToGround
	POIIssueDroneAboveMaxAltitude
)

// GuidedDirective is a location directive held by the guided capability.
type GuidedDirective struct {
	Location Location
	Altitude float64
	Speed    float64
}

// FinishedFlight describes the last directive the guided capability
// completed. Seq increases with every finished flight.
type FinishedFlight struct {
	Seq     uint64
	Success bool
}

// GuidedSnapshot is one telemetry update of the guided-motion capability.
// A nil *GuidedSnapshot means the capability is not exposed.
type GuidedSnapshot struct {
	State          CapabilityState
	Issues         []GuidedIssue
	Current        *GuidedDirective
	LatestFinished *FinishedFlight
}

// PointDirective is a look-at point held by the point-of-interest capability.
type PointDirective struct {
	Location Location
	Altitude float64
}

// POISnapshot is one telemetry update of the point-of-interest capability.
// A nil *POISnapshot means the capability is not exposed.
type POISnapshot struct {
	State   CapabilityState
	Issues  []POIIssue
	Current *PointDirective
}

// Altimeter carries the altimeter readings; nil fields are unknown.
type Altimeter struct {
	TakeoffRelative *float64
	Absolute        *float64
}

// Orientation is the heading behavior requested with a move directive.
type Orientation int

const (
	OrientationNone Orientation = iota
	OrientationToTarget
)

// MoveDirective is the fly-to command sent to the guided capability.
type MoveDirective struct {
	Location         Location
	Altitude         float64
	Orientation      Orientation
	HorizontalSpeed  float64
	VerticalSpeed    float64
	YawRotationSpeed float64
}
