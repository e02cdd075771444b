package decision

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/constellation"
	"github.com/signalsfoundry/constellation-optimizer/core"
	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/model"
)

// ErrInvalidDesign is returned when a genome decodes to a constellation that
// cannot be built.
var ErrInvalidDesign = errors.New("decision: invalid constellation design")

// Variable names understood by the builders.
const (
	VarSemiMajorAxis = "a"
	VarEccentricity  = "eccentricity"
	VarInclination   = "inclination"
	VarRAAN          = "rightAscendingNode"
	VarArgPerigee    = "periapsisArgument"
	VarNbSat         = "nbSat"
	VarNbPlanes      = "nbPlanes"
	VarSatsPerPlane  = "satsPerPlane"
	VarPhasing       = "phasing"
)

// AnomalyVar names the explicit mean anomaly variable of satellite i.
func AnomalyVar(i int) string { return fmt.Sprintf("anomaly%d", i) }

// Builder decodes a genome into a constellation. Build must be a pure
// function of its arguments.
type Builder interface {
	Build(s *Schema, g Genome) (*constellation.Constellation, error)
}

// SinglePlane places nbSat satellites in one plane. Mean anomalies come from
// anomaly<i> variables when the schema has them and are otherwise spread
// evenly around the orbit.
type SinglePlane struct {
	Epoch  time.Time
	Logger logging.Logger
}

// Build implements Builder.
func (b SinglePlane) Build(s *Schema, g Genome) (*constellation.Constellation, error) {
	r := reader{s: s, g: g}
	base := model.OrbitalElements{
		SemiMajorAxis:     r.float(VarSemiMajorAxis),
		Eccentricity:      r.float(VarEccentricity),
		Inclination:       r.float(VarInclination),
		RAAN:              r.float(VarRAAN),
		ArgumentOfPerigee: r.float(VarArgPerigee),
	}
	n := r.int(VarNbSat)
	if r.err != nil {
		return nil, r.err
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: %s=%d", ErrInvalidDesign, VarNbSat, n)
	}
	if err := core.ValidateElements(base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDesign, err)
	}

	c := constellation.New(constellation.WithLogger(b.Logger))
	for i := range int(n) {
		el := base
		el.MeanAnomaly = float64(i) / float64(n) * 2 * math.Pi
		if s.Has(AnomalyVar(i)) {
			el.MeanAnomaly = r.float(AnomalyVar(i))
		}
		c.AddSatellite(el, b.Epoch)
	}
	return c, r.err
}

// WalkerDelta builds an i:T/P/F Walker delta pattern. RAAN of plane p is
// raan0 + p·2π/P and the mean anomaly of slot j is j·2π/S + p·F·2π/T, where
// S is satellites per plane and T = P·S.
type WalkerDelta struct {
	Epoch  time.Time
	Logger logging.Logger
}

// Build implements Builder.
func (b WalkerDelta) Build(s *Schema, g Genome) (*constellation.Constellation, error) {
	r := reader{s: s, g: g}
	base := model.OrbitalElements{
		SemiMajorAxis:     r.float(VarSemiMajorAxis),
		Eccentricity:      r.float(VarEccentricity),
		Inclination:       r.float(VarInclination),
		ArgumentOfPerigee: r.optionalFloat(VarArgPerigee),
	}
	raan0 := r.optionalFloat(VarRAAN)
	planes := r.int(VarNbPlanes)
	perPlane := r.int(VarSatsPerPlane)
	phasing := r.int(VarPhasing)
	if r.err != nil {
		return nil, r.err
	}
	if planes < 1 || perPlane < 1 {
		return nil, fmt.Errorf("%w: %d planes of %d satellites", ErrInvalidDesign, planes, perPlane)
	}
	if err := core.ValidateElements(base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDesign, err)
	}

	total := float64(planes * perPlane)
	c := constellation.New(constellation.WithLogger(b.Logger))
	for p := range int(planes) {
		raan := raan0 + float64(p)*2*math.Pi/float64(planes)
		members := make([]model.Satellite, 0, perPlane)
		for j := range int(perPlane) {
			el := base
			el.MeanAnomaly = model.NormalizeAngle(float64(j)*2*math.Pi/float64(perPlane) +
				float64(p)*float64(phasing)*2*math.Pi/total)
			members = append(members, model.Satellite{Elements: el, Epoch: b.Epoch})
		}
		if _, err := c.AddPlane(base.Inclination, raan, members...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDesign, err)
		}
	}
	return c, nil
}

// reader pulls numeric values out of a genome, keeping the first error.
type reader struct {
	s   *Schema
	g   Genome
	err error
}

func (r *reader) value(name string) (Value, bool) {
	if r.err != nil {
		return Value{}, false
	}
	v, err := r.s.Lookup(r.g, name)
	if err != nil {
		r.err = err
		return Value{}, false
	}
	return v, true
}

func (r *reader) float(name string) float64 {
	v, ok := r.value(name)
	if !ok {
		return 0
	}
	return v.Float()
}

func (r *reader) optionalFloat(name string) float64 {
	if !r.s.Has(name) {
		return 0
	}
	return r.float(name)
}

func (r *reader) int(name string) int64 {
	v, ok := r.value(name)
	if !ok {
		return 0
	}
	i, err := v.Int()
	if err != nil {
		r.err = fmt.Errorf("%s: %w", name, err)
		return 0
	}
	return i
}
