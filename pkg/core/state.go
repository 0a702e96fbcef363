// pkg/core/state.go
package core

import "fmt"

// RunningKind enumerates the externally visible Touch-and-Fly states.
type RunningKind int

const (
	KindNoTarget RunningKind = iota
	KindRunning
	KindReady
	KindBlocked
)

func (k RunningKind) String() string {
	switch k {
	case KindRunning:
		return "running"
	case KindReady:
		return "ready"
	case KindBlocked:
		return "blocked"
	default:
		return "noTarget"
	}
}

// RunningState is derived from the target, both interface states and
// connectivity. DroneConnected is only meaningful for KindNoTarget and
// Blocker only for KindBlocked.
type RunningState struct {
	Kind           RunningKind
	DroneConnected bool
	Blocker        Blocker
}

var (
	// Running is the state while either interface executes a directive.
	Running = RunningState{Kind: KindRunning}
	// Ready is the state while a target is held and nothing blocks it.
	Ready = RunningState{Kind: KindReady}
)

// NoTargetState returns the NoTarget variant.
func NoTargetState(droneConnected bool) RunningState {
	return RunningState{Kind: KindNoTarget, DroneConnected: droneConnected}
}

// BlockedBy returns the Blocked variant.
func BlockedBy(b Blocker) RunningState {
	return RunningState{Kind: KindBlocked, Blocker: b}
}

// Connected reports whether the vehicle link is up. Only NoTarget carries
// it explicitly; otherwise a DroneNotConnected blocker is the one signal.
func (s RunningState) Connected() bool {
	switch s.Kind {
	case KindNoTarget:
		return s.DroneConnected
	case KindBlocked:
		return s.Blocker != BlockerDroneNotConnected
	default:
		return true
	}
}

func (s RunningState) String() string {
	switch s.Kind {
	case KindNoTarget:
		return fmt.Sprintf("noTarget(connected=%t)", s.DroneConnected)
	case KindBlocked:
		return fmt.Sprintf("blocked(%s)", s.Blocker)
	default:
		return s.Kind.String()
	}
}

// InterfaceState is what a watcher derives from one vehicle capability.
type InterfaceState struct {
	Blocker    Blocker
	InProgress bool
}

// DisconnectedInterface is the interface state of an absent capability.
var DisconnectedInterface = InterfaceState{Blocker: BlockerDroneNotConnected}

// StreamElement is the per-frame projection of the active target.
// A Kind of TargetNone means nothing is drawn.
type StreamElement struct {
	Kind     TargetKind
	Point    ScreenPoint
	Altitude float64
	Distance float64
}

// Advisory is a transient user-facing notice.
type Advisory int

const (
	// AdvisoryPOIOutOfRange is raised when a tapped screen point cannot be
	// placed as a point of interest.
	AdvisoryPOIOutOfRange Advisory = iota + 1
	// AdvisoryTargetOutOfRange is raised when the active target cannot be
	// projected onto the current frame.
	AdvisoryTargetOutOfRange
)

func (a Advisory) String() string {
	switch a {
	case AdvisoryPOIOutOfRange:
		return "poiOutOfRange"
	case AdvisoryTargetOutOfRange:
		return "targetOutOfRange"
	default:
		return "unknown"
	}
}
