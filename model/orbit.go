package model

import (
	"math"
	"time"
)

// OrbitalElements is a Keplerian element set. SemiMajorAxis is metres, all
// angles are radians.
type OrbitalElements struct {
	SemiMajorAxis     float64
	Eccentricity      float64
	Inclination       float64
	RAAN              float64
	ArgumentOfPerigee float64
	MeanAnomaly       float64
}

// Satellite is a single spacecraft of a constellation. The epoch is the
// instant at which Elements are valid.
type Satellite struct {
	ID       string
	Elements OrbitalElements
	Epoch    time.Time
}

// Plane returns the plane key derived from the satellite's inclination and RAAN.
func (s Satellite) Plane() PlaneKey {
	return KeyFor(s.Elements.Inclination, s.Elements.RAAN)
}

// PlaneKeyResolution is the angular quantum (radians) used when deriving a
// PlaneKey. Two planes whose inclination and RAAN agree to within this
// resolution share a key.
const PlaneKeyResolution = 1e-6

// PlaneKey identifies an orbital plane by fixed-point inclination and RAAN.
type PlaneKey struct {
	Inclination int64
	RAAN        int64
}

// KeyFor builds the plane key for the given inclination and RAAN. RAAN is
// normalised to [0, 2π) before quantisation.
func KeyFor(inclination, raan float64) PlaneKey {
	raan = NormalizeAngle(raan)
	k := PlaneKey{
		Inclination: int64(math.Round(inclination / PlaneKeyResolution)),
		RAAN:        int64(math.Round(raan / PlaneKeyResolution)),
	}
	// 2π - ε can round up onto the full turn.
	if full := int64(math.Round(2 * math.Pi / PlaneKeyResolution)); k.RAAN >= full {
		k.RAAN -= full
	}
	return k
}

// InclinationRad returns the quantised inclination in radians.
func (k PlaneKey) InclinationRad() float64 { return float64(k.Inclination) * PlaneKeyResolution }

// RAANRad returns the quantised RAAN in radians.
func (k PlaneKey) RAANRad() float64 { return float64(k.RAAN) * PlaneKeyResolution }

// NormalizeAngle wraps an angle into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
