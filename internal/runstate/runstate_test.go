package runstate

import (
	"testing"

	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	idle := core.InterfaceState{}
	busy := core.InterfaceState{InProgress: true}
	geofence := core.InterfaceState{Blocker: core.BlockerDroneOutOfGeofence}
	notFlying := core.InterfaceState{Blocker: core.BlockerDroneNotFlying}

	tests := []struct {
		name string
		in   Inputs
		want core.RunningState
	}{
		{
			name: "no target connected",
			in:   Inputs{Target: core.TargetNone, Guided: idle, POI: idle, Connected: true},
			want: core.NoTargetState(true),
		},
		{
			name: "no target disconnected",
			in:   Inputs{Target: core.TargetNone, Guided: core.DisconnectedInterface, POI: core.DisconnectedInterface},
			want: core.NoTargetState(false),
		},
		{
			name: "guided in progress wins over blocker",
			in:   Inputs{Target: core.TargetWaypoint, Guided: core.InterfaceState{Blocker: core.BlockerDroneAboveMaxAltitude, InProgress: true}, Connected: true},
			want: core.Running,
		},
		{
			name: "poi in progress without target",
			in:   Inputs{Target: core.TargetNone, POI: busy, Connected: true},
			want: core.Running,
		},
		{
			name: "waypoint ready",
			in:   Inputs{Target: core.TargetWaypoint, Guided: idle, POI: notFlying, Connected: true},
			want: core.Ready,
		},
		{
			name: "waypoint blocked by guided",
			in:   Inputs{Target: core.TargetWaypoint, Guided: geofence, POI: idle, Connected: true},
			want: core.BlockedBy(core.BlockerDroneOutOfGeofence),
		},
		{
			name: "poi blocked by poi interface",
			in:   Inputs{Target: core.TargetPOI, Guided: idle, POI: notFlying, Connected: true},
			want: core.BlockedBy(core.BlockerDroneNotFlying),
		},
		{
			name: "poi ignores guided blocker",
			in:   Inputs{Target: core.TargetPOI, Guided: geofence, POI: idle, Connected: true},
			want: core.Ready,
		},
		{
			name: "target kept while disconnected",
			in:   Inputs{Target: core.TargetWaypoint, Guided: core.DisconnectedInterface, POI: core.DisconnectedInterface},
			want: core.BlockedBy(core.BlockerDroneNotConnected),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.in))
		})
	}
}

func TestCanFly(t *testing.T) {
	assert.True(t, CanFly(core.Ready))
	assert.True(t, CanFly(core.Running))
	assert.False(t, CanFly(core.NoTargetState(true)))
	assert.False(t, CanFly(core.BlockedBy(core.BlockerDroneNotFlying)))
}
