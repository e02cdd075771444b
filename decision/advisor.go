package decision

import (
	"context"
	"math"

	"github.com/signalsfoundry/constellation-optimizer/core"
	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
)

// AdviceKind classifies a bound warning.
type AdviceKind int

const (
	// MissingVariable: a or inclination is not in the schema.
	MissingVariable AdviceKind = iota
	// TooHigh: at minimum altitude and maximum inclination the footprint
	// never comes down to the zone's highest latitude.
	TooHigh
	// TooLow: at minimum altitude and minimum inclination the footprint
	// never reaches the zone's highest latitude.
	TooLow
)

func (k AdviceKind) String() string {
	switch k {
	case MissingVariable:
		return "missing_variable"
	case TooHigh:
		return "too_high"
	case TooLow:
		return "too_low"
	}
	return "unknown"
}

// Advice is one suggestion about the search bounds.
type Advice struct {
	Kind    AdviceKind
	Message string
}

// FootprintHalfAngle is the Earth central angle covered by a nadir sensor of
// half field of view halfFOV from semi-major axis a (metres).
func FootprintHalfAngle(a, halfFOV float64) float64 {
	return math.Atan((a - core.WGS84A) * math.Tan(halfFOV) / core.WGS84A)
}

// AdviseBounds checks whether the a and inclination bounds can cover the
// zone's highest latitude with the given sensor. The advice is logged as
// warnings and returned; it never blocks a run.
func AdviseBounds(ctx context.Context, s *Schema, halfFOV float64, log logging.Logger) []Advice {
	log = logging.OrNoop(log)
	var out []Advice
	add := func(k AdviceKind, msg string, fields ...logging.Field) {
		out = append(out, Advice{Kind: k, Message: msg})
		log.Warn(ctx, msg, append(fields, logging.String("advice", k.String()))...)
	}

	a, okA := s.index[VarSemiMajorAxis]
	inc, okI := s.index[VarInclination]
	if !okA {
		add(MissingVariable, "decision variable of semi-major axis not found")
	}
	if !okI {
		add(MissingVariable, "decision variable of inclination not found")
	}
	if !okA || !okI {
		return out
	}

	maxLat := s.zone.MaxAbsLatitude()
	beta := FootprintHalfAngle(s.vars[a].Min, halfFOV)
	incVar := s.vars[inc]

	if incVar.Max-beta > maxLat {
		add(TooHigh, "maximum inclination at minimum semi-major axis cannot see the zone's highest latitude; reduce the maximum inclination or raise the minimum semi-major axis",
			logging.Float64("max_inclination", incVar.Max),
			logging.Float64("footprint", beta),
			logging.Float64("max_latitude", maxLat),
		)
	}
	if incVar.Min+beta < maxLat {
		add(TooLow, "minimum inclination at minimum semi-major axis cannot reach the zone's highest latitude; raise the minimum inclination or the minimum semi-major axis",
			logging.Float64("min_inclination", incVar.Min),
			logging.Float64("footprint", beta),
			logging.Float64("max_latitude", maxLat),
		)
	}
	return out
}
