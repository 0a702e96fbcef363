// pkg/core/blocker.go
package core

// Blocker is a reason the vehicle cannot currently execute a directive.
// BlockerNone is the zero value and means nothing blocks.
type Blocker int

const (
	BlockerNone Blocker = iota
	BlockerDroneNotConnected
	BlockerDroneGpsInfoInaccurate
	BlockerDroneNotCalibrated
	BlockerDroneOutOfGeofence
	BlockerDroneTooCloseToGround
	BlockerDroneAboveMaxAltitude
	BlockerDroneNotFlying
	BlockerDroneTakingOff
)

var blockerNames = map[Blocker]string{
	BlockerNone:                   "none",
	BlockerDroneNotConnected:      "droneNotConnected",
	BlockerDroneGpsInfoInaccurate: "droneGpsInfoInaccurate",
	BlockerDroneNotCalibrated:     "droneNotCalibrated",
	BlockerDroneOutOfGeofence:     "droneOutOfGeofence",
	BlockerDroneTooCloseToGround:  "droneTooCloseToGround",
	BlockerDroneAboveMaxAltitude:  "droneAboveMaxAltitude",
	BlockerDroneNotFlying:         "droneNotFlying",
	BlockerDroneTakingOff:         "droneTakingOff",
}

func (b Blocker) String() string {
	if s, ok := blockerNames[b]; ok {
		return s
	}
	return "unknown"
}

// Blocking reports whether b is an actual blocker.
func (b Blocker) Blocking() bool {
	return b != BlockerNone
}
