package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/touchfly/internal/config"
	"github.com/OCAP2/touchfly/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func line(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestStatePoint(t *testing.T) {
	tests := []struct {
		name     string
		state    core.RunningState
		contains []string
		excludes []string
	}{
		{
			name:     "blocked carries blocker tag",
			state:    core.BlockedBy(core.BlockerDroneGpsInfoInaccurate),
			contains: []string{"running_state,", "state=blocked", "blocker=" + core.BlockerDroneGpsInfoInaccurate.String(), "connected=true"},
		},
		{
			name:     "blocked while disconnected",
			state:    core.BlockedBy(core.BlockerDroneNotConnected),
			contains: []string{"state=blocked", "connected=false"},
		},
		{
			name:     "no target disconnected",
			state:    core.NoTargetState(false),
			contains: []string{"state=noTarget", "connected=false"},
			excludes: []string{"blocker="},
		},
		{
			name:     "running",
			state:    core.Running,
			contains: []string{"state=running"},
			excludes: []string{"blocker="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := line(StatePoint(tt.state, at))
			for _, s := range tt.contains {
				assert.Contains(t, l, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, l, s)
			}
		})
	}
}

func TestProgressPoint(t *testing.T) {
	l := line(ProgressPoint(0.25, 120.5, at))
	assert.True(t, strings.HasPrefix(l, "progress "))
	assert.Contains(t, l, "fraction=0.25")
	assert.Contains(t, l, "remaining_m=120.5")

	assert.NotContains(t, line(ProgressPoint(0.25, -1, at)), "remaining_m")
}

func TestCommandPoint(t *testing.T) {
	l := line(CommandPoint("moveTo", at))
	assert.Contains(t, l, "command,kind=moveTo")
	assert.Contains(t, l, "count=1i")
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{Enabled: false}, zerolog.Nop())

	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, m.Valid())

	m.RecordState(core.Ready, at)
	assert.NoError(t, m.Close())
}

func TestConnect_UnreachableWritesBackup(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(config.InfluxConfig{
		Enabled:   true,
		Protocol:  "http",
		Host:      "127.0.0.1",
		Port:      "1",
		Org:       "touchfly",
		Bucket:    "flight",
		BackupDir: dir,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.Valid())

	m.RecordState(core.Ready, at)
	m.RecordProgress(0.5, 10, at)
	m.RecordCommand("startPOI", at)
	require.NoError(t, m.Close())

	f, err := os.Open(filepath.Join(dir, BackupFileName))
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "running_state,state=ready")
	assert.Contains(t, out, "fraction=0.5")
	assert.Contains(t, out, "command,kind=startPOI")
}
