// pkg/core/session.go
package core

import "time"

// Outcome is how a guidance session ended.
type Outcome string

const (
	OutcomeActive       Outcome = ""
	OutcomeReached      Outcome = "reached"
	OutcomeCleared      Outcome = "cleared"
	OutcomeStopped      Outcome = "stopped"
	OutcomeReplaced     Outcome = "replaced"
	OutcomeDisconnected Outcome = "disconnected"
)

// SessionRecord is the journal entry of one waypoint flight.
type SessionRecord struct {
	ID        uint64
	Target    Location
	Altitude  float64
	Speed     float64
	Start     *Location // nil when the drone position was unknown
	StartedAt time.Time
	EndedAt   time.Time // zero while active
	Outcome   Outcome
}

// Ended reports whether the session has finished.
func (r SessionRecord) Ended() bool {
	return r.Outcome != OutcomeActive
}
