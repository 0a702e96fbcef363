// pkg/core/location.go
package core

import "math"

// Location is a WGS84 geographic coordinate in decimal degrees.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinate is finite and within WGS84 bounds.
func (l Location) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) ||
		math.IsInf(l.Latitude, 0) || math.IsInf(l.Longitude, 0) {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// ScreenPoint is a position on the video frame, normalized to [0,1] on both
// axes with the origin at the top-left corner.
type ScreenPoint struct {
	X float64
	Y float64
}

// Pose is the live drone position as reported by the location tracker.
type Pose struct {
	Location Location
	Heading  float64 // degrees, clockwise from true north
}
