package watcher

import (
	"github.com/OCAP2/touchfly/internal/blocker"
	"github.com/OCAP2/touchfly/internal/target"
	"github.com/OCAP2/touchfly/pkg/core"
)

// POIResult is what one point-of-interest update means for the engine.
type POIResult struct {
	State    core.InterfaceState
	Readback *target.Readback
}

// ObservePOI evaluates a point-of-interest snapshot. While the held target
// is a waypoint the capability is only aiming the camera, so it is never
// reported in progress and nothing is read back.
func ObservePOI(snap *core.POISnapshot, flying core.FlyingState, held core.TargetKind) POIResult {
	if snap == nil {
		return POIResult{State: core.DisconnectedInterface}
	}
	res := POIResult{
		State: core.InterfaceState{
			Blocker: blocker.ForFlyingState(blocker.FirstPOI(snap.Issues), flying),
		},
	}
	if held == core.TargetWaypoint {
		return res
	}
	if snap.State == core.CapabilityActive && snap.Current != nil {
		res.Readback = &target.Readback{
			Kind:     core.TargetPOI,
			Location: snap.Current.Location,
			Altitude: snap.Current.Altitude,
		}
		res.State.InProgress = true
	}
	return res
}
