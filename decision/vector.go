package decision

import (
	"context"
	"fmt"
)

// Vector pairs a schema with one mutable genome, for evaluating a single
// hand-picked design.
type Vector struct {
	schema *Schema
	genome Genome
}

// NewVector validates g against s and copies it.
func NewVector(s *Schema, g Genome) (*Vector, error) {
	if err := s.Validate(g); err != nil {
		return nil, err
	}
	return &Vector{schema: s, genome: g.Clone()}, nil
}

// Schema returns the vector's schema.
func (v *Vector) Schema() *Schema { return v.schema }

// Get returns the current value of name.
func (v *Vector) Get(name string) (Value, error) {
	return v.schema.Lookup(v.genome, name)
}

// Set replaces the value of name. The value must lie in the variable's domain.
func (v *Vector) Set(name string, x Value) error {
	i, ok := v.schema.Index(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}
	if vr := v.schema.vars[i]; !vr.Contains(x) {
		return fmt.Errorf("%w: %s=%s", ErrGenomeMismatch, name, x)
	}
	v.genome[i] = x
	return nil
}

// Values returns a copy of the current genome.
func (v *Vector) Values() Genome { return v.genome.Clone() }

// Cost scores the current genome with cf.
func (v *Vector) Cost(ctx context.Context, cf *CostFunction) (float64, error) {
	return cf.Cost(ctx, v.Values())
}
