package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/OCAP2/touchfly/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// ParseLevel maps a config level name to a zerolog level. Unknown names
// fall back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Sinks holds the writers opened by Setup. Close releases them.
type Sinks struct {
	File    *lumberjack.Logger
	Graylog *gelf.Writer
}

// Close closes the rotating file and the GELF connection.
func (s *Sinks) Close() error {
	var firstErr error
	if s.File != nil {
		if err := s.File.Close(); err != nil {
			firstErr = err
		}
	}
	if s.Graylog != nil {
		if err := s.Graylog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Setup configures zerolog globals and returns a logger writing colored
// output to console, plain output to a rotating file under cfg.Dir and,
// when enabled, GELF messages to Graylog.
func Setup(cfg config.LogConfig, name string, console io.Writer, sessionStart time.Time) (zerolog.Logger, *Sinks, error) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("creating logs dir: %w", err)
	}

	sinks := &Sinks{
		File: &lumberjack.Logger{
			Filename:   LogFilePath(cfg.Dir, name, sessionStart),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		},
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.RFC3339,
		},
		zerolog.ConsoleWriter{
			Out:        sinks.File,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		},
	}

	if cfg.GraylogEnabled {
		gw, err := gelf.NewWriter(cfg.GraylogAddress)
		if err != nil {
			_ = sinks.Close()
			return zerolog.Nop(), nil, fmt.Errorf("connecting to graylog: %w", err)
		}
		sinks.Graylog = gw
		writers = append(writers, gw)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	logger.Info().Str("loglevel", zerolog.GlobalLevel().String()).Msg("Logging set up")
	return logger, sinks, nil
}

// Sampled returns a logger for high-rate telemetry: bursts of 5 per 10
// seconds, then 1 in 100.
func Sampled(logger zerolog.Logger) zerolog.Logger {
	return logger.With().Bool("sampled", true).Logger().Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})
}
