package core

import (
	"math"

	"github.com/signalsfoundry/constellation-optimizer/model"
)

// WGS-84 ellipsoid parameters.
const (
	WGS84A  = 6378137.0             // semi-major axis (metres)
	WGS84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = WGS84F * (2 - WGS84F) // first eccentricity squared
)

// Vec3 is an ECEF vector in metres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Observer is a ground location with its ECEF position and the trig terms of
// its topocentric frame precomputed, so it can be reused across many
// satellite positions.
type Observer struct {
	Point model.GeodeticPoint
	ECEF  Vec3

	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewObserver precomputes the observer frame for p.
func NewObserver(p model.GeodeticPoint) Observer {
	return Observer{
		Point:  p,
		ECEF:   GeodeticToECEF(p),
		sinLat: math.Sin(p.Latitude),
		cosLat: math.Cos(p.Latitude),
		sinLon: math.Sin(p.Longitude),
		cosLon: math.Cos(p.Longitude),
	}
}

// GeodeticToECEF converts a WGS-84 geodetic point to ECEF metres.
func GeodeticToECEF(p model.GeodeticPoint) Vec3 {
	sinLat := math.Sin(p.Latitude)
	cosLat := math.Cos(p.Latitude)

	// Radius of curvature in the prime vertical.
	n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vec3{
		X: (n + p.Altitude) * cosLat * math.Cos(p.Longitude),
		Y: (n + p.Altitude) * cosLat * math.Sin(p.Longitude),
		Z: (n*(1-wgs84E2) + p.Altitude) * sinLat,
	}
}

// Elevation returns the elevation (radians) of target above the observer's
// local horizon. The ellipsoid normal defines zenith. A target coincident with
// the observer is treated as overhead.
func (o Observer) Elevation(target Vec3) float64 {
	r := target.Sub(o.ECEF)
	rng := r.Norm()
	if rng == 0 {
		return math.Pi / 2
	}
	zenith := o.cosLat*o.cosLon*r.X + o.cosLat*o.sinLon*r.Y + o.sinLat*r.Z
	s := zenith / rng
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return math.Asin(s)
}

// Elevation is the one-shot form of Observer.Elevation.
func Elevation(observer model.GeodeticPoint, target Vec3) float64 {
	return NewObserver(observer).Elevation(target)
}
