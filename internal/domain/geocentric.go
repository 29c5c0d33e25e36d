package domain

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// EarthRadius is the spherical earth radius in metres used for all
// geocentric coordinates.
const EarthRadius = 6370997.0

// Unreachable is the position assigned to degenerate lon/lat pairs. It is
// never within any finite radius of a real point.
var Unreachable = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}

// IsUnreachable reports whether p is the degenerate position.
func IsUnreachable(p r3.Vector) bool {
	return math.IsInf(p.X, 1)
}

// ValidLonLat reports whether lon and lat describe a position on the globe.
func ValidLonLat(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lat >= -90 && lat <= 90
}

// Geocentric converts lon/lat in degrees to earth-centred cartesian metres.
// Invalid positions map to Unreachable.
func Geocentric(lon, lat float64) r3.Vector {
	if !ValidLonLat(lon, lat) {
		return Unreachable
	}
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	return p.Vector.Mul(EarthRadius)
}
