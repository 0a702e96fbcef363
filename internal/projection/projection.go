// Package projection maps geographic points to normalized video-frame
// coordinates and back.
package projection

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/touchfly/internal/geo"
	"github.com/OCAP2/touchfly/pkg/core"
)

var (
	// ErrOutOfRange is returned when a point falls outside what the camera
	// can see or reach.
	ErrOutOfRange = errors.New("point out of range")
	// ErrBehindCamera is returned when a target lies behind the image plane.
	ErrBehindCamera = fmt.Errorf("%w: behind camera", ErrOutOfRange)
	// ErrInvalidCamera is returned for an unusable camera description.
	ErrInvalidCamera = errors.New("invalid camera")
)

// Camera is the camera geometry for one frame. Altitudes are absolute.
type Camera struct {
	Location      core.Location
	Altitude      float64 // meters above sea level
	Yaw           float64 // degrees, clockwise from true north
	Pitch         float64 // degrees, 0 at the horizon, -90 straight down
	HorizontalFOV float64 // degrees
	AspectRatio   float64 // frame width over height
}

// Projector is the contract the guidance core relies on.
type Projector interface {
	// Project returns where a geographic point at the given absolute
	// altitude appears on the frame.
	Project(cam Camera, loc core.Location, altitude float64) (core.ScreenPoint, error)
	// Unproject intersects the ray through a screen point with the
	// horizontal plane at groundAltitude (absolute).
	Unproject(cam Camera, point core.ScreenPoint, groundAltitude float64) (core.Location, error)
}

// Pinhole is an undistorted pinhole camera projector.
type Pinhole struct {
	// MaxRange is the furthest horizontal distance in meters a point may be
	// from the camera. Zero disables the limit.
	MaxRange float64
}

// NewPinhole creates a pinhole projector.
func NewPinhole(maxRange float64) *Pinhole {
	return &Pinhole{MaxRange: maxRange}
}

type vec3 struct{ e, n, u float64 }

func (a vec3) dot(b vec3) float64 { return a.e*b.e + a.n*b.n + a.u*b.u }

func (a vec3) add(b vec3) vec3 { return vec3{a.e + b.e, a.n + b.n, a.u + b.u} }

func (a vec3) scale(s float64) vec3 { return vec3{a.e * s, a.n * s, a.u * s} }

// basis returns the forward, right and up camera axes in east/north/up.
func (c Camera) basis() (fwd, right, up vec3) {
	yaw := c.Yaw * math.Pi / 180
	pitch := c.Pitch * math.Pi / 180
	sy, cy := math.Sincos(yaw)
	sp, cp := math.Sincos(pitch)
	fwd = vec3{sy * cp, cy * cp, sp}
	right = vec3{cy, -sy, 0}
	up = vec3{-sy * sp, -cy * sp, cp}
	return fwd, right, up
}

func (c Camera) validate() error {
	if !c.Location.Valid() {
		return fmt.Errorf("%w: location %v", ErrInvalidCamera, c.Location)
	}
	if !(c.HorizontalFOV > 0 && c.HorizontalFOV < 180) {
		return fmt.Errorf("%w: horizontal fov %v", ErrInvalidCamera, c.HorizontalFOV)
	}
	if !(c.AspectRatio > 0) {
		return fmt.Errorf("%w: aspect ratio %v", ErrInvalidCamera, c.AspectRatio)
	}
	return nil
}

// focal returns the focal length in frame widths.
func (c Camera) focal() float64 {
	return 0.5 / math.Tan(c.HorizontalFOV*math.Pi/360)
}

// Project implements Projector.
func (p *Pinhole) Project(cam Camera, loc core.Location, altitude float64) (core.ScreenPoint, error) {
	if err := cam.validate(); err != nil {
		return core.ScreenPoint{}, err
	}
	frame, err := geo.NewLocalFrame(cam.Location)
	if err != nil {
		return core.ScreenPoint{}, err
	}
	east, north, err := frame.Offset(loc)
	if err != nil {
		return core.ScreenPoint{}, err
	}
	if p.MaxRange > 0 && math.Hypot(east, north) > p.MaxRange {
		return core.ScreenPoint{}, ErrOutOfRange
	}

	d := vec3{east, north, altitude - cam.Altitude}
	fwd, right, up := cam.basis()
	zc := d.dot(fwd)
	if zc <= 0 {
		return core.ScreenPoint{}, ErrBehindCamera
	}
	f := cam.focal()
	pt := core.ScreenPoint{
		X: 0.5 + f*d.dot(right)/zc,
		Y: 0.5 - cam.AspectRatio*f*d.dot(up)/zc,
	}
	if pt.X < 0 || pt.X > 1 || pt.Y < 0 || pt.Y > 1 {
		return core.ScreenPoint{}, ErrOutOfRange
	}
	return pt, nil
}

// Unproject implements Projector.
func (p *Pinhole) Unproject(cam Camera, point core.ScreenPoint, groundAltitude float64) (core.Location, error) {
	if err := cam.validate(); err != nil {
		return core.Location{}, err
	}
	if point.X < 0 || point.X > 1 || point.Y < 0 || point.Y > 1 {
		return core.Location{}, ErrOutOfRange
	}
	f := cam.focal()
	fwd, right, up := cam.basis()
	dir := fwd.
		add(right.scale((point.X - 0.5) / f)).
		add(up.scale((0.5 - point.Y) / (cam.AspectRatio * f)))

	height := groundAltitude - cam.Altitude
	if dir.u == 0 {
		return core.Location{}, ErrOutOfRange
	}
	t := height / dir.u
	if t <= 0 {
		return core.Location{}, ErrOutOfRange
	}
	east, north := dir.e*t, dir.n*t
	if p.MaxRange > 0 && math.Hypot(east, north) > p.MaxRange {
		return core.Location{}, ErrOutOfRange
	}

	frame, err := geo.NewLocalFrame(cam.Location)
	if err != nil {
		return core.Location{}, err
	}
	return frame.Locate(east, north)
}
