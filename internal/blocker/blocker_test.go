package blocker

import (
	"testing"

	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestFromGuidedIssue(t *testing.T) {
	tests := []struct {
		issue core.GuidedIssue
		want  core.Blocker
	}{
		{core.GuidedIssueDroneNotFlying, core.BlockerDroneNotFlying},
		{core.GuidedIssueDroneNotCalibrated, core.BlockerDroneNotCalibrated},
		{core.GuidedIssueDroneGpsInfoInaccurate, core.BlockerDroneGpsInfoInaccurate},
		{core.GuidedIssueDroneOutOfGeofence, core.BlockerDroneOutOfGeofence},
		{core.GuidedIssueDroneTooCloseToGround, core.BlockerDroneTooCloseToGround},
		{core.GuidedIssueDroneAboveMaxAltitude, core.BlockerDroneAboveMaxAltitude},
		{core.GuidedIssue(99), core.BlockerDroneNotConnected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromGuidedIssue(tt.issue), "issue %d", tt.issue)
	}
}

func TestFromPOIIssue(t *testing.T) {
	tests := []struct {
		issue core.POIIssue
		want  core.Blocker
	}{
		{core.POIIssueDroneNotFlying, core.BlockerDroneNotFlying},
		{core.POIIssueDroneNotCalibrated, core.BlockerDroneNotCalibrated},
		{core.POIIssueDroneGpsInfoInaccurate, core.BlockerDroneGpsInfoInaccurate},
		{core.POIIssueDroneOutOfGeofence, core.BlockerDroneOutOfGeofence},
		{core.POIIssueDroneTooCloseToGround, core.BlockerDroneTooCloseToGround},
		{core.POIIssueDroneAboveMaxAltitude, core.BlockerDroneAboveMaxAltitude},
		{core.POIIssue(-1), core.BlockerDroneNotConnected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromPOIIssue(tt.issue), "issue %d", tt.issue)
	}
}

func TestFirstGuided_PicksLowestIssue(t *testing.T) {
	assert.Equal(t, core.BlockerNone, FirstGuided(nil))

	issues := []core.GuidedIssue{
		core.GuidedIssueDroneAboveMaxAltitude,
		core.GuidedIssueDroneNotCalibrated,
	}
	assert.Equal(t, core.BlockerDroneNotCalibrated, FirstGuided(issues))
	// input order is left untouched
	assert.Equal(t, core.GuidedIssueDroneAboveMaxAltitude, issues[0])
}

func TestFirstPOI_PicksLowestIssue(t *testing.T) {
	assert.Equal(t, core.BlockerNone, FirstPOI([]core.POIIssue{}))
	assert.Equal(t, core.BlockerDroneNotFlying, FirstPOI([]core.POIIssue{
		core.POIIssueDroneOutOfGeofence,
		core.POIIssueDroneNotFlying,
	}))
}

func TestForFlyingState(t *testing.T) {
	tests := []struct {
		name   string
		in     core.Blocker
		flying core.FlyingState
		want   core.Blocker
	}{
		{"not flying while landing is suppressed", core.BlockerDroneNotFlying, core.FlyingStateLanding, core.BlockerNone},
		{"not flying while taking off", core.BlockerDroneNotFlying, core.FlyingStateTakingOff, core.BlockerDroneTakingOff},
		{"not flying while landed", core.BlockerDroneNotFlying, core.FlyingStateLanded, core.BlockerDroneNotFlying},
		{"other blocker while landing", core.BlockerDroneOutOfGeofence, core.FlyingStateLanding, core.BlockerDroneOutOfGeofence},
		{"none stays none", core.BlockerNone, core.FlyingStateTakingOff, core.BlockerNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForFlyingState(tt.in, tt.flying))
		})
	}
}
