// Package watcher turns vehicle capability telemetry into interface states
// and vehicle-authoritative read-backs for the target store.
package watcher

import (
	"github.com/OCAP2/touchfly/internal/blocker"
	"github.com/OCAP2/touchfly/internal/target"
	"github.com/OCAP2/touchfly/pkg/core"
)

// GuidedResult is what one guided-motion update means for the engine.
type GuidedResult struct {
	State core.InterfaceState
	// Reached is set when a flight just finished successfully and the
	// waypoint target should be dropped.
	Reached bool
	// Readback is the active directive, nil when none is active.
	Readback *target.Readback
}

// Guided watches the guided-motion capability.
type Guided struct {
	// finishedSeq is the sequence of the last finished flight seen; valid
	// only when baseline is set.
	finishedSeq uint64
	baseline    bool
}

// NewGuided creates a guided-motion watcher.
func NewGuided() *Guided {
	return &Guided{}
}

// Observe evaluates a capability snapshot. A nil snapshot means the
// capability is not exposed. window is true while the post-takeoff
// re-acquisition window is open.
func (w *Guided) Observe(snap *core.GuidedSnapshot, flying core.FlyingState, window bool) GuidedResult {
	if snap == nil {
		w.baseline = false
		return GuidedResult{State: core.DisconnectedInterface}
	}

	res := GuidedResult{
		State: core.InterfaceState{
			Blocker: blocker.ForFlyingState(blocker.FirstGuided(snap.Issues), flying),
		},
	}

	if w.justFinished(snap.LatestFinished) && flying.IsFlyingOrWaiting() && !window {
		res.Reached = true
	}

	if snap.State == core.CapabilityActive && snap.Current != nil {
		speed := snap.Current.Speed
		res.Readback = &target.Readback{
			Kind:     core.TargetWaypoint,
			Location: snap.Current.Location,
			Altitude: snap.Current.Altitude,
			Speed:    &speed,
		}
		res.State.InProgress = true
	}
	return res
}

// justFinished reports a successful finished flight not seen before. The
// first snapshot after (re)connection only records the baseline.
func (w *Guided) justFinished(f *core.FinishedFlight) bool {
	if f == nil {
		if !w.baseline {
			w.baseline = true
			w.finishedSeq = 0
		}
		return false
	}
	if !w.baseline {
		w.baseline = true
		w.finishedSeq = f.Seq
		return false
	}
	if f.Seq == w.finishedSeq {
		return false
	}
	w.finishedSeq = f.Seq
	return f.Success
}
