package core

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/constellation-optimizer/model"
)

// MotionModel reports a satellite's ECEF position (metres) at a given time.
// Implementations must be safe for concurrent use.
type MotionModel interface {
	PositionAt(t time.Time) (Vec3, error)
}

// StaticMotionModel always reports the same position.
type StaticMotionModel struct {
	Position Vec3
}

// PositionAt returns the fixed position.
func (m StaticMotionModel) PositionAt(time.Time) (Vec3, error) { return m.Position, nil }

// OrbitalSGP4MotionModel propagates a satellite with SGP4.
type OrbitalSGP4MotionModel struct {
	sat satellite.Satellite
	tle TLE
}

// NewOrbitalModelFromTLE constructs an orbital model from TLE lines.
func NewOrbitalModelFromTLE(tle TLE) (*OrbitalSGP4MotionModel, error) {
	if len(tle.Line1) != 69 || len(tle.Line2) != 69 {
		return nil, fmt.Errorf("%w: TLE lines must be 69 characters", ErrInvalidElements)
	}
	sat := satellite.TLEToSat(tle.Line1, tle.Line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr)
	}
	return &OrbitalSGP4MotionModel{sat: sat, tle: tle}, nil
}

// NewOrbitalModel synthesises a TLE for the satellite and initialises SGP4
// from it. catalog is the NORAD number written into the TLE.
func NewOrbitalModel(s model.Satellite, catalog int) (*OrbitalSGP4MotionModel, error) {
	tle, err := SynthesizeTLE(s.Elements, s.Epoch, catalog)
	if err != nil {
		return nil, fmt.Errorf("satellite %s: %w", s.ID, err)
	}
	m, err := NewOrbitalModelFromTLE(tle)
	if err != nil {
		return nil, fmt.Errorf("satellite %s: %w", s.ID, err)
	}
	return m, nil
}

// TLE returns the element set the model was built from.
func (m *OrbitalSGP4MotionModel) TLE() TLE { return m.tle }

// PositionAt propagates to t, truncated to whole seconds, and returns the
// ECEF position. go-satellite works in kilometres; results are metres.
func (m *OrbitalSGP4MotionModel) PositionAt(t time.Time) (Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// Propagate takes the satellite by value, so concurrent calls are safe.
	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(posECI.X) || math.IsNaN(posECI.Y) || math.IsNaN(posECI.Z) {
		return Vec3{}, fmt.Errorf("sgp4 propagation failed at %s: NaN position", t.Format(time.RFC3339))
	}
	if r := math.Sqrt(posECI.X*posECI.X + posECI.Y*posECI.Y + posECI.Z*posECI.Z); r < earthRadiusWGS72Km {
		return Vec3{}, fmt.Errorf("sgp4 propagation failed at %s: radius %.1f km", t.Format(time.RFC3339), r)
	}

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	return Vec3{
		X: posECEF.X * kmToM,
		Y: posECEF.Y * kmToM,
		Z: posECEF.Z * kmToM,
	}, nil
}
