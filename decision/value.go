package decision

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrKindMismatch is returned by typed accessors when the value holds the
// other kind.
var ErrKindMismatch = errors.New("decision: value kind mismatch")

// Kind is the domain of a decision variable.
type Kind int

const (
	Real Kind = iota
	Integer
)

func (k Kind) String() string {
	switch k {
	case Real:
		return "real"
	case Integer:
		return "integer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts "real" or "integer".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "real", "float", "double":
		return Real, nil
	case "integer", "int":
		return Integer, nil
	}
	return 0, fmt.Errorf("unknown variable kind %q", s)
}

// Value holds either a real or an integer payload.
type Value struct {
	kind Kind
	f    float64
	i    int64
}

// RealValue wraps a float64.
func RealValue(f float64) Value { return Value{kind: Real, f: f} }

// IntValue wraps an int64.
func IntValue(i int64) Value { return Value{kind: Integer, i: i} }

// Kind returns the payload kind.
func (v Value) Kind() Kind { return v.kind }

// Real returns the float64 payload.
func (v Value) Real() (float64, error) {
	if v.kind != Real {
		return 0, fmt.Errorf("%w: want real, have %s", ErrKindMismatch, v.kind)
	}
	return v.f, nil
}

// Int returns the int64 payload.
func (v Value) Int() (int64, error) {
	if v.kind != Integer {
		return 0, fmt.Errorf("%w: want integer, have %s", ErrKindMismatch, v.kind)
	}
	return v.i, nil
}

// Float returns the payload as a float64 whatever its kind. Search operators
// work on this numeric view and project back with Variable.Project.
func (v Value) Float() float64 {
	if v.kind == Integer {
		return float64(v.i)
	}
	return v.f
}

func (v Value) String() string {
	if v.kind == Integer {
		return strconv.FormatInt(v.i, 10)
	}
	return strconv.FormatFloat(v.f, 'g', -1, 64)
}

// MarshalJSON writes the bare number.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// Genome is one candidate: a value per schema variable, in schema order.
type Genome []Value

// Clone returns an independent copy.
func (g Genome) Clone() Genome {
	if g == nil {
		return nil
	}
	out := make(Genome, len(g))
	copy(out, g)
	return out
}
