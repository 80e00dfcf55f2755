package geo

import (
	"math"
)

const (
	earthRadiusMeters = 6371000.0

	// Equirectangular approximations used for short-range bearing math.
	metersPerDegreeLatitude  = 111320.0
	equatorCircumferenceMeters = 40075000.0
)

// Point is a WGS-84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula.
func DistanceMeters(a, b Point) float64 {
	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	hSin := math.Sin(dLat / 2)
	hSin *= hSin

	vSin := math.Sin(dLng / 2)
	vSin *= vSin

	h := hSin + math.Cos(lat1)*math.Cos(lat2)*vSin

	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PointAtBearing returns the point reached by travelling distanceMeters from
// origin along bearingRadians, measured clockwise from true north.
func PointAtBearing(origin Point, distanceMeters, bearingRadians float64) Point {
	dLat := (distanceMeters * math.Cos(bearingRadians)) / metersPerDegreeLatitude
	dLng := (distanceMeters * math.Sin(bearingRadians)) /
		(equatorCircumferenceMeters * math.Cos(degreesToRadians(origin.Lat)) / 360)

	return Point{
		Lat: origin.Lat + dLat,
		Lng: origin.Lng + dLng,
	}
}

// BearingRadians returns the initial bearing from one point toward another,
// clockwise from true north. Inverse of PointAtBearing for short distances.
func BearingRadians(from, to Point) float64 {
	north := (to.Lat - from.Lat) * metersPerDegreeLatitude
	east := (to.Lng - from.Lng) *
		(equatorCircumferenceMeters * math.Cos(degreesToRadians(from.Lat)) / 360)

	return math.Atan2(east, north)
}

// WithinRadius reports whether p lies inside the circle around center.
func WithinRadius(p, center Point, radiusMeters float64) bool {
	return DistanceMeters(p, center) <= radiusMeters
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
