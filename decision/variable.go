package decision

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalidBounds is returned when a variable's bounds do not satisfy min < max.
var ErrInvalidBounds = errors.New("decision: invalid bounds")

// MaxIntegerBound is the largest magnitude an integer bound may have. Bounds
// are held as float64, which is exact up to 2^53, and the sampled range then
// stays well inside int64.
const MaxIntegerBound = 1 << 53

// Variable is one dimension of the search space.
//
// Real variables draw from [Min, Max). Integer variables draw from [Min, Max)
// unless MaxInclusive is set, in which case Max itself is reachable.
type Variable struct {
	Name         string
	Kind         Kind
	Min, Max     float64
	MaxInclusive bool
}

// NewReal builds a real variable on [min, max).
func NewReal(name string, min, max float64) (Variable, error) {
	v := Variable{Name: name, Kind: Real, Min: min, Max: max}
	return v, v.validate()
}

// NewInteger builds an integer variable on [min, max), or [min, max] when
// maxInclusive is set.
func NewInteger(name string, min, max int64, maxInclusive bool) (Variable, error) {
	v := Variable{Name: name, Kind: Integer, Min: float64(min), Max: float64(max), MaxInclusive: maxInclusive}
	return v, v.validate()
}

func (v Variable) validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: variable has no name", ErrInvalidBounds)
	}
	if math.IsNaN(v.Min) || math.IsNaN(v.Max) || math.IsInf(v.Min, 0) || math.IsInf(v.Max, 0) || !(v.Min < v.Max) {
		return fmt.Errorf("%w: %s requires min < max, got [%v, %v]", ErrInvalidBounds, v.Name, v.Min, v.Max)
	}
	if math.IsInf(v.Max-v.Min, 0) {
		return fmt.Errorf("%w: %s span [%v, %v] overflows", ErrInvalidBounds, v.Name, v.Min, v.Max)
	}
	if v.Kind == Integer && (math.Abs(v.Min) > MaxIntegerBound || math.Abs(v.Max) > MaxIntegerBound) {
		return fmt.Errorf("%w: integer %s bounds exceed ±2^53", ErrInvalidBounds, v.Name)
	}
	if v.Kind == Integer && (v.Min != math.Trunc(v.Min) || v.Max != math.Trunc(v.Max)) {
		return fmt.Errorf("%w: integer %s has fractional bounds", ErrInvalidBounds, v.Name)
	}
	if v.Kind == Integer && !v.MaxInclusive && v.Max-v.Min < 1 {
		return fmt.Errorf("%w: integer %s has an empty range", ErrInvalidBounds, v.Name)
	}
	return nil
}

// intRange returns the inclusive integer bounds.
func (v Variable) intRange() (lo, hi int64) {
	lo, hi = int64(v.Min), int64(v.Max)
	if !v.MaxInclusive {
		hi--
	}
	return lo, hi
}

// Sample draws a uniformly distributed value.
func (v Variable) Sample(rng *rand.Rand) Value {
	if v.Kind == Integer {
		lo, hi := v.intRange()
		return IntValue(lo + rng.Int63n(hi-lo+1))
	}
	return RealValue(v.Min + rng.Float64()*(v.Max-v.Min))
}

// Contains reports whether x has the variable's kind and lies in its domain.
func (v Variable) Contains(x Value) bool {
	if x.Kind() != v.Kind {
		return false
	}
	if v.Kind == Integer {
		lo, hi := v.intRange()
		return x.i >= lo && x.i <= hi
	}
	return x.f >= v.Min && x.f < v.Max
}

// Project maps an arbitrary number onto the closest value in the domain.
// Integers are rounded first.
func (v Variable) Project(x float64) Value {
	if math.IsNaN(x) {
		x = v.Min
	}
	if v.Kind == Integer {
		lo, hi := v.intRange()
		r := math.Round(x)
		switch {
		case r < float64(lo):
			return IntValue(lo)
		case r > float64(hi):
			return IntValue(hi)
		}
		return IntValue(int64(r))
	}
	switch {
	case x < v.Min:
		x = v.Min
	case x >= v.Max:
		x = math.Nextafter(v.Max, v.Min)
	}
	return RealValue(x)
}

// Span is the width of the domain, used to scale mutations.
func (v Variable) Span() float64 {
	if v.Kind == Integer {
		lo, hi := v.intRange()
		return float64(hi - lo)
	}
	return v.Max - v.Min
}
