// Package runstate derives the single externally visible Touch-and-Fly
// state from its inputs.
package runstate

import "github.com/OCAP2/touchfly/pkg/core"

// Inputs is everything the running state depends on.
type Inputs struct {
	Target    core.TargetKind
	Guided    core.InterfaceState
	POI       core.InterfaceState
	Connected bool
}

// Compute returns the running state. An in-progress maneuver wins over any
// blocker; the POI branch is checked first but the two target kinds never
// coexist.
func Compute(in Inputs) core.RunningState {
	if in.Guided.InProgress || in.POI.InProgress {
		return core.Running
	}
	switch in.Target {
	case core.TargetPOI:
		return fromInterface(in.POI)
	case core.TargetWaypoint:
		return fromInterface(in.Guided)
	default:
		return core.NoTargetState(in.Connected)
	}
}

func fromInterface(s core.InterfaceState) core.RunningState {
	if s.Blocker.Blocking() {
		return core.BlockedBy(s.Blocker)
	}
	return core.Ready
}

// CanFly reports whether a directive may be committed in state s.
func CanFly(s core.RunningState) bool {
	return s.Kind == core.KindReady || s.Kind == core.KindRunning
}
