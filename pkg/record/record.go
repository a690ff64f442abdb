// Package record holds the design record produced by a successful resolution.
//
// A Record is an immutable snapshot. It is never re-derived on load: decoding a
// serialized record and encoding it again yields the same document.
package record

import (
	"slices"
	"sort"

	"github.com/leapstack-labs/unitdesign/pkg/core"
)

// Version is the document format version written by this package.
const Version = 1

// Constraint is the result of checking one bounded quantity.
type Constraint struct {
	Quantity  string
	Rule      string // empty for inputs and defaults
	Value     float64
	Bounds    core.Bounds
	Satisfied bool
}

// GroupReport describes how one resolution group was resolved.
type GroupReport struct {
	Index      int
	Rules      []string
	Quantities []string
	Cyclic     bool
	Iterations int
	Residual   float64
	Converged  bool
}

func (g GroupReport) clone() GroupReport {
	g.Rules = slices.Clone(g.Rules)
	g.Quantities = slices.Clone(g.Quantities)
	return g
}

// Record is the immutable result of a resolution.
type Record struct {
	unitProcess string
	quantities  []core.Quantity // sorted by name
	constraints []Constraint    // sorted by quantity
	groups      []GroupReport   // in resolution order
	satisfied   bool
}

// New assembles a record. Constraint results are computed from each
// quantity's bounds.
func New(unitProcess string, quantities []core.Quantity, groups []GroupReport) *Record {
	r := &Record{
		unitProcess: unitProcess,
		quantities:  slices.Clone(quantities),
		satisfied:   true,
	}
	sort.Slice(r.quantities, func(i, j int) bool {
		return r.quantities[i].Name < r.quantities[j].Name
	})

	for _, q := range r.quantities {
		if q.Bounds.IsZero() {
			continue
		}
		c := Constraint{
			Quantity:  q.Name,
			Rule:      q.Source.Rule,
			Value:     q.Value,
			Bounds:    q.Bounds,
			Satisfied: q.WithinBounds(),
		}
		r.satisfied = r.satisfied && c.Satisfied
		r.constraints = append(r.constraints, c)
	}

	for _, g := range groups {
		r.groups = append(r.groups, g.clone())
	}
	return r
}

// UnitProcess returns the unit process type the record was resolved for.
func (r *Record) UnitProcess() string { return r.unitProcess }

// ConstraintsSatisfied reports whether every bound held.
func (r *Record) ConstraintsSatisfied() bool { return r.satisfied }

// Len returns the number of quantities.
func (r *Record) Len() int { return len(r.quantities) }

// Names returns the quantity names in order.
func (r *Record) Names() []string {
	names := make([]string, len(r.quantities))
	for i, q := range r.quantities {
		names[i] = q.Name
	}
	return names
}

// Quantities returns a copy of every quantity in name order.
func (r *Record) Quantities() []core.Quantity {
	return slices.Clone(r.quantities)
}

// Quantity returns the named quantity.
func (r *Record) Quantity(name string) (core.Quantity, bool) {
	i, found := sort.Find(len(r.quantities), func(i int) int {
		switch {
		case name < r.quantities[i].Name:
			return -1
		case name > r.quantities[i].Name:
			return 1
		}
		return 0
	})
	if !found {
		return core.Quantity{}, false
	}
	return r.quantities[i], true
}

// Value returns the value of the named quantity, or 0 and false.
func (r *Record) Value(name string) (float64, bool) {
	q, ok := r.Quantity(name)
	return q.Value, ok
}

// Constraints returns a copy of the constraint results.
func (r *Record) Constraints() []Constraint {
	return slices.Clone(r.constraints)
}

// Convergence returns a copy of the group reports.
func (r *Record) Convergence() []GroupReport {
	out := make([]GroupReport, len(r.groups))
	for i, g := range r.groups {
		out[i] = g.clone()
	}
	return out
}
