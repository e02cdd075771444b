package model

import "fmt"

// GeodeticPoint is a location on or above the WGS-84 ellipsoid.
// Latitude and longitude are radians, altitude is metres.
type GeodeticPoint struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// MeshPoint is a sample location produced by a zone mesh. Points are compared
// by value and never mutated once the mesh is built.
type MeshPoint = GeodeticPoint

func (p GeodeticPoint) String() string {
	return fmt.Sprintf("(lat=%.6f lon=%.6f alt=%.1f)", p.Latitude, p.Longitude, p.Altitude)
}
