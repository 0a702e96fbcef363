package monitor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/touchfly/internal/touchfly"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	samples  atomic.Int32
	state    core.RunningState
	target   core.Target
	progress float64
	elapsed  touchfly.Elapsed
	err      error
}

func (f *fakeSource) Sample() error {
	f.samples.Add(1)
	return f.err
}
func (f *fakeSource) CurrentState() core.RunningState  { return f.state }
func (f *fakeSource) CurrentTarget() core.Target       { return f.target }
func (f *fakeSource) CurrentProgress() float64         { return f.progress }
func (f *fakeSource) CurrentElapsed() touchfly.Elapsed { return f.elapsed }

func TestGetStatus_RunningWaypoint(t *testing.T) {
	src := &fakeSource{
		state:    core.Running,
		target:   core.Waypoint(core.Location{Latitude: 48.85, Longitude: 2.35}, 30, 7),
		progress: 0.4,
		elapsed:  touchfly.Elapsed{Duration: 12 * time.Second, Active: true},
	}
	s := NewService(Dependencies{Source: src})

	st := s.GetStatus(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, "waypoint", st.Target)
	assert.True(t, st.DroneConnected)
	assert.Equal(t, 7.0, st.Speed)
	assert.Equal(t, 30.0, st.Altitude)
	assert.Equal(t, 0.4, st.Progress)
	assert.Equal(t, 12.0, st.ElapsedSeconds)
	assert.True(t, st.SessionActive)
	assert.Empty(t, st.Blocker)
}

func TestGetStatus_BlockedPOI(t *testing.T) {
	src := &fakeSource{
		state:  core.BlockedBy(core.BlockerDroneNotFlying),
		target: core.PointOfInterest(core.Location{Latitude: 1, Longitude: 2}, 0),
	}
	st := NewService(Dependencies{Source: src}).GetStatus(time.Now())

	assert.Equal(t, "blocked", st.State)
	assert.Equal(t, core.BlockerDroneNotFlying.String(), st.Blocker)
	assert.Equal(t, "poi", st.Target)
	assert.True(t, st.DroneConnected)
	assert.Zero(t, st.Speed)
}

func TestGetStatus_BlockedOffline(t *testing.T) {
	src := &fakeSource{
		state:  core.BlockedBy(core.BlockerDroneNotConnected),
		target: core.Waypoint(core.Location{Latitude: 1, Longitude: 2}, 20, 5),
	}
	st := NewService(Dependencies{Source: src}).GetStatus(time.Now())

	assert.Equal(t, "blocked", st.State)
	assert.False(t, st.DroneConnected)
	assert.Equal(t, "waypoint", st.Target)
}

func TestTick_WritesStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	src := &fakeSource{state: core.NoTargetState(true), err: errors.New("mailbox full")}
	s := NewService(Dependencies{Source: src, StatusFile: path, Logger: zerolog.Nop()})

	s.Tick(time.Now())

	assert.Equal(t, int32(1), src.samples.Load())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "noTarget", st.State)
	assert.True(t, st.DroneConnected)
	assert.Equal(t, "none", st.Target)
}

func TestTick_NoStatusFile(t *testing.T) {
	src := &fakeSource{}
	s := NewService(Dependencies{Source: src, Logger: zerolog.Nop()})
	s.Tick(time.Now())
	assert.Equal(t, int32(1), src.samples.Load())
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	s := NewService(Dependencies{Source: src, Interval: 5 * time.Millisecond, Logger: zerolog.Nop()})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return src.samples.Load() >= 2 }, time.Second, time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	n := src.samples.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, src.samples.Load())

	s.Stop()
}
