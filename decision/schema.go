package decision

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/zone"
)

var (
	ErrVariableNotFound  = errors.New("decision: variable not found")
	ErrIndexOutOfRange   = errors.New("decision: index out of range")
	ErrEmptySchema       = errors.New("decision: schema has no variables")
	ErrDuplicateVariable = errors.New("decision: duplicate variable name")
	ErrNoZone            = errors.New("decision: schema has no zone")
	ErrGenomeMismatch    = errors.New("decision: genome does not match schema")
)

// Schema is the ordered set of decision variables plus the zone they are
// evaluated over. It is immutable and safe to share between goroutines.
type Schema struct {
	vars  []Variable
	index map[string]int
	zone  *zone.Zone
	log   logging.Logger
}

// SchemaOption configures a Schema.
type SchemaOption func(*Schema)

// WithSchemaLogger sets the logger used for lookup warnings.
func WithSchemaLogger(l logging.Logger) SchemaOption {
	return func(s *Schema) { s.log = logging.OrNoop(l) }
}

// NewSchema validates and indexes vars.
func NewSchema(z *zone.Zone, vars []Variable, opts ...SchemaOption) (*Schema, error) {
	if z == nil {
		return nil, ErrNoZone
	}
	if len(vars) == 0 {
		return nil, ErrEmptySchema
	}
	s := &Schema{
		vars:  slices.Clone(vars),
		index: make(map[string]int, len(vars)),
		zone:  z,
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for i, v := range s.vars {
		if err := v.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.index[v.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVariable, v.Name)
		}
		s.index[v.Name] = i
	}
	return s, nil
}

// Len returns the number of variables.
func (s *Schema) Len() int { return len(s.vars) }

// Zone returns the zone the schema is evaluated over.
func (s *Schema) Zone() *zone.Zone { return s.zone }

// Variables returns a copy of the variables in order.
func (s *Schema) Variables() []Variable { return slices.Clone(s.vars) }

// Get looks a variable up by name.
func (s *Schema) Get(name string) (Variable, error) {
	i, ok := s.index[name]
	if !ok {
		s.log.Warn(context.Background(), "decision variable not found", logging.String("name", name))
		return Variable{}, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}
	return s.vars[i], nil
}

// Has reports whether a variable exists without logging.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// At returns the i-th variable.
func (s *Schema) At(i int) (Variable, error) {
	if i < 0 || i >= len(s.vars) {
		return Variable{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.vars))
	}
	return s.vars[i], nil
}

// Index returns the position of a variable.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// RandomInit draws every variable uniformly from its domain.
func (s *Schema) RandomInit(rng *rand.Rand) Genome {
	g := make(Genome, len(s.vars))
	for i, v := range s.vars {
		g[i] = v.Sample(rng)
	}
	return g
}

// Validate checks g's length, kinds and bounds.
func (s *Schema) Validate(g Genome) error {
	if len(g) != len(s.vars) {
		return fmt.Errorf("%w: %d values for %d variables", ErrGenomeMismatch, len(g), len(s.vars))
	}
	for i, v := range s.vars {
		if !v.Contains(g[i]) {
			return fmt.Errorf("%w: %s=%s (%s in [%v, %v] inclusive=%v)",
				ErrGenomeMismatch, v.Name, g[i], v.Kind, v.Min, v.Max, v.MaxInclusive)
		}
	}
	return nil
}

// Lookup returns the value of name in g.
func (s *Schema) Lookup(g Genome, name string) (Value, error) {
	i, ok := s.index[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}
	if i >= len(g) {
		return Value{}, fmt.Errorf("%w: genome too short for %q", ErrGenomeMismatch, name)
	}
	return g[i], nil
}

// Named returns g keyed by variable name.
func (s *Schema) Named(g Genome) map[string]Value {
	out := make(map[string]Value, len(s.vars))
	for i, v := range s.vars {
		if i < len(g) {
			out[v.Name] = g[i]
		}
	}
	return out
}
