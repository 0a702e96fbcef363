// Package progress computes waypoint travel progress and projects the
// active target to and from the video frame.
package progress

import (
	"github.com/OCAP2/touchfly/internal/geo"
	"github.com/OCAP2/touchfly/pkg/core"
)

// Fraction returns how far the drone has travelled from start towards
// target, clamped to [0,1]. It is 0 when either position is unknown or
// start and target coincide.
func Fraction(start, current *core.Location, target core.Location) float64 {
	if start == nil || current == nil {
		return 0
	}
	total := geo.Distance(*start, target)
	if total == 0 {
		return 0
	}
	p := 1 - geo.Distance(*current, target)/total
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// Remaining returns the great-circle distance in meters from current to
// target, or false when the position is unknown.
func Remaining(current *core.Location, target core.Location) (float64, bool) {
	if current == nil {
		return 0, false
	}
	return geo.Distance(*current, target), true
}
