package core

import (
	"math"
	"slices"
	"sort"

	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Inputs is the read-only view of resolved values a rule computes from.
type Inputs interface {
	// Float returns the value of name in its declared unit, or NaN if absent.
	Float(name string) float64
	// Measure returns the value of name with its declared unit.
	Measure(name string) units.Measure
	// Names returns the available names in lexical order.
	Names() []string
}

// Computer is the single capability a rule provides.
//
// Compute returns the output value. A Measure with a zero Unit is taken to
// be in the output quantity's declared unit; any other unit is converted.
// Returning an error reports a computation failure.
type Computer interface {
	Compute(in Inputs) (units.Measure, error)
}

// ComputeFunc adapts a function to Computer.
type ComputeFunc func(in Inputs) (units.Measure, error)

// Compute implements Computer.
func (f ComputeFunc) Compute(in Inputs) (units.Measure, error) { return f(in) }

// Scalar adapts a float function whose result is in the output's declared unit.
func Scalar(fn func(in Inputs) (float64, error)) Computer {
	return ComputeFunc(func(in Inputs) (units.Measure, error) {
		v, err := fn(in)
		if err != nil {
			return units.Measure{}, err
		}
		return units.Measure{Value: v}, nil
	})
}

// Rule derives one quantity from others.
type Rule struct {
	Name        string
	Description string
	Inputs      []string
	Output      string
	Compute     Computer
	Bounds      Bounds // intersected with the output's declared bounds
}

// Clone returns a copy of r that shares no slices with it.
func (r Rule) Clone() Rule {
	r.Inputs = slices.Clone(r.Inputs)
	return r
}

// Consumes reports whether name is one of r's inputs.
func (r Rule) Consumes(name string) bool {
	return slices.Contains(r.Inputs, name)
}

// InputSet is a map-backed Inputs.
type InputSet map[string]units.Measure

// Float implements Inputs.
func (s InputSet) Float(name string) float64 {
	m, ok := s[name]
	if !ok {
		return math.NaN()
	}
	return m.Value
}

// Measure implements Inputs.
func (s InputSet) Measure(name string) units.Measure {
	m, ok := s[name]
	if !ok {
		return units.Scalar(math.NaN())
	}
	return m
}

// Names implements Inputs.
func (s InputSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
