package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OCAP2/touchfly/internal/geo"
	"github.com/OCAP2/touchfly/internal/projection"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrNoPose is returned when the drone position is unknown.
var ErrNoPose = errors.New("drone position unknown")

// AdvisorySink shows and hides transient user notices.
type AdvisorySink interface {
	Show(a core.Advisory)
	Hide(a core.Advisory)
}

// Snapshot is the published engine state a frame is projected against.
type Snapshot struct {
	Target core.Target
	Pose   *core.Pose
	// RelativeAltitude and AbsoluteAltitude are the altimeter readings.
	RelativeAltitude *float64
	AbsoluteAltitude *float64
}

// FrameHint describes the camera for one frame. A non-nil Pose replaces the
// snapshot pose for this frame.
type FrameHint struct {
	Pose          *core.Pose
	Pitch         float64 // degrees, 0 at the horizon
	HorizontalFOV float64
	AspectRatio   float64
}

// Projector projects the active target per frame and resolves screen taps
// into target locations. Safe for concurrent use.
type Projector struct {
	proj   projection.Projector
	sink   AdvisorySink
	logger zerolog.Logger

	mu    sync.Mutex
	shown map[core.Advisory]bool

	failures metric.Int64Counter
}

// NewProjector creates a Projector. sink may be nil.
func NewProjector(proj projection.Projector, sink AdvisorySink, logger zerolog.Logger) (*Projector, error) {
	p := &Projector{
		proj:   proj,
		sink:   sink,
		logger: logger,
		shown:  make(map[core.Advisory]bool),
	}
	var err error
	p.failures, err = meter().Int64Counter(
		"projection.failures",
		metric.WithDescription("Projection calls that produced no result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	return p, nil
}

// Frame projects the active target onto one video frame. Any failure yields
// the empty element; an out-of-range target also raises an advisory that
// the next successful frame clears.
func (p *Projector) Frame(s Snapshot, hint FrameHint) core.StreamElement {
	if s.Target.IsNone() {
		return core.StreamElement{}
	}
	cam, offset, err := camera(s, hint)
	if err != nil {
		p.fail(err)
		return core.StreamElement{}
	}
	pt, err := p.proj.Project(cam, s.Target.Location, s.Target.Altitude+offset)
	if err != nil {
		p.fail(err)
		if errors.Is(err, projection.ErrOutOfRange) {
			p.show(core.AdvisoryTargetOutOfRange)
		}
		return core.StreamElement{}
	}
	p.hide(core.AdvisoryTargetOutOfRange)
	return core.StreamElement{
		Kind:     s.Target.Kind,
		Point:    pt,
		Altitude: s.Target.Altitude,
		Distance: geo.Distance(cam.Location, s.Target.Location),
	}
}

// ToPOI resolves a tapped screen point into a point-of-interest location on
// the take-off ground plane. Out of range returns nil and raises an
// advisory that the next success clears.
func (p *Projector) ToPOI(s Snapshot, pt core.ScreenPoint, hint FrameHint) *core.Location {
	loc, err := p.unproject(s, pt, hint)
	if err != nil {
		p.fail(err)
		if errors.Is(err, projection.ErrOutOfRange) {
			p.show(core.AdvisoryPOIOutOfRange)
		}
		return nil
	}
	p.hide(core.AdvisoryPOIOutOfRange)
	return &loc
}

// ToWaypoint resolves a tapped screen point into a waypoint location. No
// advisory is raised on failure.
func (p *Projector) ToWaypoint(s Snapshot, pt core.ScreenPoint, hint FrameHint) *core.Location {
	loc, err := p.unproject(s, pt, hint)
	if err != nil {
		p.fail(err)
		return nil
	}
	return &loc
}

func (p *Projector) unproject(s Snapshot, pt core.ScreenPoint, hint FrameHint) (core.Location, error) {
	cam, offset, err := camera(s, hint)
	if err != nil {
		return core.Location{}, err
	}
	// take-off ground sits at relative altitude 0
	return p.proj.Unproject(cam, pt, offset)
}

// camera builds the camera for a frame and returns the offset that turns a
// take-off-relative altitude into the camera's altitude reference.
func camera(s Snapshot, hint FrameHint) (projection.Camera, float64, error) {
	pose := s.Pose
	if hint.Pose != nil {
		pose = hint.Pose
	}
	if pose == nil {
		return projection.Camera{}, 0, ErrNoPose
	}
	var relative, offset float64
	if s.RelativeAltitude != nil {
		relative = *s.RelativeAltitude
	}
	if s.AbsoluteAltitude != nil && s.RelativeAltitude != nil {
		offset = *s.AbsoluteAltitude - *s.RelativeAltitude
	}
	return projection.Camera{
		Location:      pose.Location,
		Altitude:      relative + offset,
		Yaw:           pose.Heading,
		Pitch:         hint.Pitch,
		HorizontalFOV: hint.HorizontalFOV,
		AspectRatio:   hint.AspectRatio,
	}, offset, nil
}

func (p *Projector) fail(err error) {
	reason := "other"
	switch {
	case errors.Is(err, ErrNoPose):
		reason = "no_pose"
	case errors.Is(err, projection.ErrBehindCamera):
		reason = "behind_camera"
	case errors.Is(err, projection.ErrOutOfRange):
		reason = "out_of_range"
	case errors.Is(err, projection.ErrInvalidCamera):
		reason = "invalid_camera"
	}
	p.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (p *Projector) show(a core.Advisory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown[a] {
		return
	}
	p.shown[a] = true
	p.logger.Info().Stringer("advisory", a).Msg("advisory raised")
	if p.sink != nil {
		p.sink.Show(a)
	}
}

func (p *Projector) hide(a core.Advisory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.shown[a] {
		return
	}
	p.shown[a] = false
	p.logger.Info().Stringer("advisory", a).Msg("advisory cleared")
	if p.sink != nil {
		p.sink.Hide(a)
	}
}

// Showing reports whether advisory a is currently raised.
func (p *Projector) Showing(a core.Advisory) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown[a]
}
