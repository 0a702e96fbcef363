package watcher

import "github.com/OCAP2/touchfly/pkg/core"

// Reacquire is the one-shot post-takeoff re-acquisition window. It opens
// when the flight phase goes from taking off to flying or waiting and is
// consumed by the first Fire that acts on it.
type Reacquire struct {
	open bool
}

// Flying records a flight phase transition.
func (r *Reacquire) Flying(prev, next core.FlyingState) {
	switch {
	case prev == core.FlyingStateTakingOff && next.IsFlyingOrWaiting():
		r.open = true
	case !next.IsFlyingOrWaiting():
		r.open = false
	}
}

// Open reports whether the window is open.
func (r *Reacquire) Open() bool { return r.open }

// Reset closes the window.
func (r *Reacquire) Reset() { r.open = false }

// Fire reports whether the held target should be started now. It closes
// the window when it returns true, or when there is no target to resume.
// While return-to-home is active or a point of interest is in progress it
// keeps waiting.
func (r *Reacquire) Fire(held core.TargetKind, rthActive, poiInProgress bool) bool {
	if !r.open {
		return false
	}
	if held == core.TargetNone {
		r.open = false
		return false
	}
	if rthActive || poiInProgress {
		return false
	}
	r.open = false
	return true
}
