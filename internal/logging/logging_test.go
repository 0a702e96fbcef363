package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/touchfly/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		logName string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "touchflylogs",
			logName: "touchfly",
			want:    filepath.Join("touchflylogs", "touchfly.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./touchflylogs",
			logName: "touchfly",
			want:    filepath.Join(".", "touchflylogs", "touchfly.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "touchfly"),
			logName: "touchfly",
			want:    filepath.Join("/var", "log", "touchfly", "touchfly.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.logName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"Warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup_WritesConsoleAndFile(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var console bytes.Buffer

	logger, sinks, err := Setup(config.LogConfig{Level: "debug", Dir: dir, MaxSizeMB: 1}, "touchfly", &console, start)
	require.NoError(t, err)
	require.Nil(t, sinks.Graylog)

	logger.Debug().Str("state", "ready").Msg("state changed")
	require.NoError(t, sinks.Close())

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.Contains(t, console.String(), "Logging set up")
	assert.Contains(t, console.String(), "state changed")

	data, err := os.ReadFile(LogFilePath(dir, "touchfly", start))
	require.NoError(t, err)
	assert.Contains(t, string(data), "state changed")
	assert.Contains(t, string(data), "state=ready")
}

func TestSampled_Bursts(t *testing.T) {
	var buf bytes.Buffer
	logger := Sampled(zerolog.New(&buf))

	for range 20 {
		logger.Info().Msg("tick")
	}

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.GreaterOrEqual(t, lines, 5)
	assert.Less(t, lines, 20)
}
