// Package blocker translates capability unavailability reasons into the
// unified core.Blocker.
package blocker

import (
	"slices"

	"github.com/OCAP2/touchfly/pkg/core"
)

// FromGuidedIssue maps a guided-motion issue to its blocker. Values outside
// the known set resolve to BlockerDroneNotConnected so an unrecognized
// report is never taken as available.
func FromGuidedIssue(issue core.GuidedIssue) core.Blocker {
	switch issue {
	case core.GuidedIssueDroneNotFlying:
		return core.BlockerDroneNotFlying
	case core.GuidedIssueDroneNotCalibrated:
		return core.BlockerDroneNotCalibrated
	case core.GuidedIssueDroneGpsInfoInaccurate:
		return core.BlockerDroneGpsInfoInaccurate
	case core.GuidedIssueDroneOutOfGeofence:
		return core.BlockerDroneOutOfGeofence
	case core.GuidedIssueDroneTooCloseToGround:
		return core.BlockerDroneTooCloseToGround
	case core.GuidedIssueDroneAboveMaxAltitude:
		return core.BlockerDroneAboveMaxAltitude
	default:
		return core.BlockerDroneNotConnected
	}
}

// FromPOIIssue maps a point-of-interest issue to its blocker.
func FromPOIIssue(issue core.POIIssue) core.Blocker {
	switch issue {
	case core.POIIssueDroneNotFlying:
		return core.BlockerDroneNotFlying
	case core.POIIssueDroneNotCalibrated:
		return core.BlockerDroneNotCalibrated
	case core.POIIssueDroneGpsInfoInaccurate:
		return core.BlockerDroneGpsInfoInaccurate
	case core.POIIssueDroneOutOfGeofence:
		return core.BlockerDroneOutOfGeofence
	case core.POIIssueDroneTooCloseToGround:
		return core.BlockerDroneTooCloseToGround
	case core.POIIssueDroneAboveMaxAltitude:
		return core.BlockerDroneAboveMaxAltitude
	default:
		return core.BlockerDroneNotConnected
	}
}

// FirstGuided resolves the first reported guided issue, ordered by issue
// value. An empty set yields BlockerNone.
func FirstGuided(issues []core.GuidedIssue) core.Blocker {
	if len(issues) == 0 {
		return core.BlockerNone
	}
	return FromGuidedIssue(slices.Min(issues))
}

// FirstPOI resolves the first reported point-of-interest issue.
func FirstPOI(issues []core.POIIssue) core.Blocker {
	if len(issues) == 0 {
		return core.BlockerNone
	}
	return FromPOIIssue(slices.Min(issues))
}

// ForFlyingState adjusts a blocker for the current flight phase. A
// not-flying report is suppressed while landing and reported as taking off
// during take-off, since both are expected transients.
func ForFlyingState(b core.Blocker, flying core.FlyingState) core.Blocker {
	if b != core.BlockerDroneNotFlying {
		return b
	}
	switch flying {
	case core.FlyingStateLanding:
		return core.BlockerNone
	case core.FlyingStateTakingOff:
		return core.BlockerDroneTakingOff
	default:
		return b
	}
}
