package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/OCAP2/touchfly/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371008.8

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// LocationFromString parses a "lat,lon" or "lat,lon,alt" string. The altitude
// is returned separately and is nil when absent.
func LocationFromString(coords string) (core.Location, *float64, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return core.Location{}, nil, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.Location{}, nil, ErrInvalidCoordinates
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.Location{}, nil, ErrInvalidCoordinates
	}
	loc := core.Location{Latitude: lat, Longitude: long}
	if !loc.Valid() {
		return core.Location{}, nil, ErrInvalidCoordinates
	}
	if len(coordsSplit) > 2 {
		alt, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[2]), 64)
		if err != nil {
			return core.Location{}, nil, ErrInvalidCoordinates
		}
		return loc, &alt, nil
	}
	return loc, nil, nil
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b core.Location) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Coords3857From4326 creates a web mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	if math.Abs(latitude) > 85.06 {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
	return point, nil
}

// LocationFrom3857 converts a web mercator point back to a location.
func LocationFrom3857(point geom.Point) (core.Location, error) {
	coords, ok := point.Coordinates()
	if !ok {
		return core.Location{}, ErrInvalidCoordinates
	}
	f := wgs84.EPSG().Transform(3857, 4326)
	long, lat, _ := f(coords.X, coords.Y, 0)
	loc := core.Location{Latitude: lat, Longitude: long}
	if !loc.Valid() {
		return core.Location{}, ErrInvalidCoordinates
	}
	return loc, nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
