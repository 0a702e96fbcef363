// Package influx writes flight metrics to InfluxDB, or to a gzip
// line-protocol backup when the server cannot be reached.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/touchfly/internal/config"
	"github.com/OCAP2/touchfly/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx disabled")

// BackupFileName is the gzip line-protocol file written under BackupDir.
const BackupFileName = "influx_backup.log.gzip"

const (
	measurementState    = "running_state"
	measurementProgress = "progress"
	measurementCommand  = "command"
)

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	cfg    config.InfluxConfig
	logger zerolog.Logger

	mu         sync.Mutex
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backupFile *os.File
	backup     *gzip.Writer
	valid      bool
}

// NewManager creates a manager. Nothing is written until Connect succeeds.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: log}
}

// Connect pings the server and prepares the org and bucket. When the server
// is unreachable, points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(
		m.cfg.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.logger.Warn().Err(err).Str("url", m.cfg.URL()).
			Msg("InfluxDB not reachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.writer.Errors())

	m.valid = true
	m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.backup != nil {
		return nil
	}
	if err := os.MkdirAll(m.cfg.BackupDir, 0755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	path := filepath.Join(m.cfg.BackupDir, BackupFileName)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %q: %w", m.cfg.Org, err)
		}
	}

	buckets := m.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30,
		})
		if err != nil {
			return fmt.Errorf("creating bucket %q: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

// Valid reports whether points go to the server.
func (m *Manager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// WritePoint sends a point to the server or the backup file. Without
// either it is dropped.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.valid:
		m.writer.WritePoint(point)
	case m.backup != nil:
		line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
		if _, err := m.backup.Write([]byte(line)); err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
		}
	}
	return nil
}

// RecordState writes a running_state point.
func (m *Manager) RecordState(s core.RunningState, at time.Time) {
	m.write(StatePoint(s, at))
}

// RecordProgress writes a progress point.
func (m *Manager) RecordProgress(fraction, remaining float64, at time.Time) {
	m.write(ProgressPoint(fraction, remaining, at))
}

// RecordCommand writes a command point.
func (m *Manager) RecordCommand(command string, at time.Time) {
	m.write(CommandPoint(command, at))
}

func (m *Manager) write(p *influxdb2_write.Point) {
	if err := m.WritePoint(p); err != nil {
		m.logger.Error().Err(err).Str("measurement", p.Name()).Msg("Failed to write metric")
	}
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	m.valid = false

	var firstErr error
	if m.backup != nil {
		if err := m.backup.Close(); err != nil {
			firstErr = err
		}
		if err := m.backupFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.backup, m.backupFile = nil, nil
	}
	return firstErr
}

// StatePoint builds a running_state point tagged with the state kind and,
// when blocked, the blocker.
func StatePoint(s core.RunningState, at time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(measurementState).
		AddTag("state", s.Kind.String()).
		AddField("connected", s.Connected()).
		SetTime(at)
	if s.Kind == core.KindBlocked {
		p.AddTag("blocker", s.Blocker.String())
	}
	return p
}

// ProgressPoint builds a progress point. A negative remaining distance
// means unknown and is omitted.
func ProgressPoint(fraction, remaining float64, at time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(measurementProgress).
		AddField("fraction", fraction).
		SetTime(at)
	if remaining >= 0 {
		p.AddField("remaining_m", remaining)
	}
	return p
}

// CommandPoint builds a command point tagged with the command kind.
func CommandPoint(command string, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(measurementCommand).
		AddTag("kind", command).
		AddField("count", 1).
		SetTime(at)
}
