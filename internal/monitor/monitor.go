package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/touchfly/internal/touchfly"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
)

// Source is what the monitor samples and reports on.
type Source interface {
	Sample() error
	CurrentState() core.RunningState
	CurrentTarget() core.Target
	CurrentProgress() float64
	CurrentElapsed() touchfly.Elapsed
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     Source
	Interval   time.Duration
	StatusFile string
	Logger     zerolog.Logger
}

// Status is the JSON document written to the status file.
type Status struct {
	Time           time.Time `json:"time"`
	State          string    `json:"state"`
	Blocker        string    `json:"blocker,omitempty"`
	DroneConnected bool      `json:"droneConnected"`
	Target         string    `json:"target"`
	Latitude       float64   `json:"latitude,omitempty"`
	Longitude      float64   `json:"longitude,omitempty"`
	Altitude       float64   `json:"altitude,omitempty"`
	Speed          float64   `json:"speed,omitempty"`
	Progress       float64   `json:"progress"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	SessionActive  bool      `json:"sessionActive"`
}

// Service drives the once-per-second elapsed time sample and keeps the
// status file current.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus reads the latest published values.
func (s *Service) GetStatus(now time.Time) Status {
	src := s.deps.Source
	state := src.CurrentState()
	target := src.CurrentTarget()
	elapsed := src.CurrentElapsed()

	st := Status{
		Time:           now.UTC(),
		State:          state.Kind.String(),
		DroneConnected: state.Connected(),
		Target:         target.Kind.String(),
		Progress:       src.CurrentProgress(),
		ElapsedSeconds: elapsed.Duration.Seconds(),
		SessionActive:  elapsed.Active,
	}
	if state.Kind == core.KindBlocked {
		st.Blocker = state.Blocker.String()
	}
	if !target.IsNone() {
		st.Latitude = target.Location.Latitude
		st.Longitude = target.Location.Longitude
		st.Altitude = target.Altitude
		if target.IsWaypoint() {
			st.Speed = target.Speed
		}
	}
	return st
}

// WriteStatus replaces the status file with st.
func (s *Service) WriteStatus(st Status) error {
	if s.deps.StatusFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusFile)
}

// Tick samples the source once and refreshes the status file.
func (s *Service) Tick(now time.Time) {
	log := s.deps.Logger
	if err := s.deps.Source.Sample(); err != nil {
		log.Debug().Err(err).Msg("elapsed sample not queued")
	}
	if err := s.WriteStatus(s.GetStatus(now)); err != nil {
		log.Error().Err(err).Msg("Error writing status file")
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug().Dur("interval", s.deps.Interval).Msg("Starting status monitor")
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				s.Tick(now)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.done
	s.stopChan = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
