package geo

import (
	"math"

	"github.com/OCAP2/touchfly/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// LocalFrame is an east/north metric frame anchored at an origin. It is
// built on web mercator scaled by the origin latitude, which is accurate to
// well under a percent over the few kilometers a camera can see.
type LocalFrame struct {
	originX float64
	originY float64
	scale   float64 // meters per mercator unit at the origin
}

// NewLocalFrame anchors a frame at origin.
func NewLocalFrame(origin core.Location) (LocalFrame, error) {
	if !origin.Valid() {
		return LocalFrame{}, ErrInvalidCoordinates
	}
	p, err := Coords3857From4326(origin.Longitude, origin.Latitude)
	if err != nil {
		return LocalFrame{}, err
	}
	c, _ := p.Coordinates()
	return LocalFrame{
		originX: c.X,
		originY: c.Y,
		scale:   math.Cos(radians(origin.Latitude)),
	}, nil
}

// Offset returns the east and north offsets of loc from the origin in meters.
func (f LocalFrame) Offset(loc core.Location) (east, north float64, err error) {
	p, err := Coords3857From4326(loc.Longitude, loc.Latitude)
	if err != nil {
		return 0, 0, err
	}
	c, _ := p.Coordinates()
	return (c.X - f.originX) * f.scale, (c.Y - f.originY) * f.scale, nil
}

// Locate returns the location at the given east and north offsets.
func (f LocalFrame) Locate(east, north float64) (core.Location, error) {
	p := geom.NewPoint(geom.Coordinates{
		XY: geom.XY{
			X: f.originX + east/f.scale,
			Y: f.originY + north/f.scale,
		},
		Type: geom.DimXY,
	})
	return LocationFrom3857(p)
}
