package core

import (
	"fmt"
	"math"
	"strconv"

	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// =============================================================================
// Bounds
// =============================================================================

// Limit is an optional bound value.
type Limit struct {
	Value float64
	Valid bool
}

// LimitOf returns a set Limit.
func LimitOf(v float64) Limit {
	return Limit{Value: v, Valid: true}
}

func (l Limit) String() string {
	if !l.Valid {
		return "none"
	}
	return strconv.FormatFloat(l.Value, 'g', -1, 64)
}

// Side identifies which bound a value crossed.
type Side string

// Bound sides.
const (
	SideLower Side = "lower"
	SideUpper Side = "upper"
)

// Bounds is an optional closed interval [Lower, Upper].
type Bounds struct {
	Lower Limit
	Upper Limit
}

// Unbounded returns Bounds with neither side set.
func Unbounded() Bounds { return Bounds{} }

// Between returns Bounds [lo, hi].
func Between(lo, hi float64) Bounds {
	return Bounds{Lower: LimitOf(lo), Upper: LimitOf(hi)}
}

// AtLeast returns Bounds [lo, +inf).
func AtLeast(lo float64) Bounds { return Bounds{Lower: LimitOf(lo)} }

// AtMost returns Bounds (-inf, hi].
func AtMost(hi float64) Bounds { return Bounds{Upper: LimitOf(hi)} }

// IsZero reports whether neither side is set.
func (b Bounds) IsZero() bool { return !b.Lower.Valid && !b.Upper.Valid }

// Contains is the bound predicate: v is at or above Lower and at or below Upper.
func (b Bounds) Contains(v float64) bool {
	_, _, crossed := b.Check(v)
	return !crossed
}

// Check reports the first bound v crosses, if any. NaN crosses every set bound.
func (b Bounds) Check(v float64) (Side, float64, bool) {
	if b.Lower.Valid && !(v >= b.Lower.Value) {
		return SideLower, b.Lower.Value, true
	}
	if b.Upper.Valid && !(v <= b.Upper.Value) {
		return SideUpper, b.Upper.Value, true
	}
	return "", 0, false
}

// Intersect returns the tightest bounds satisfying both b and o.
func (b Bounds) Intersect(o Bounds) Bounds {
	out := b
	if o.Lower.Valid && (!out.Lower.Valid || o.Lower.Value > out.Lower.Value) {
		out.Lower = o.Lower
	}
	if o.Upper.Valid && (!out.Upper.Valid || o.Upper.Value < out.Upper.Value) {
		out.Upper = o.Upper
	}
	return out
}

// Empty reports whether no value can satisfy b.
func (b Bounds) Empty() bool {
	return b.Lower.Valid && b.Upper.Valid && b.Lower.Value > b.Upper.Value
}

// Midpoint returns the centre of b. It needs both sides set.
func (b Bounds) Midpoint() (float64, bool) {
	if !b.Lower.Valid || !b.Upper.Valid {
		return 0, false
	}
	return (b.Lower.Value + b.Upper.Value) / 2, true
}

// Convert re-expresses the bounds from one unit to another.
func (b Bounds) Convert(from, to units.Unit) (Bounds, error) {
	out := b
	var err error
	if b.Lower.Valid {
		if out.Lower.Value, err = units.Convert(b.Lower.Value, from, to); err != nil {
			return Bounds{}, err
		}
	}
	if b.Upper.Valid {
		if out.Upper.Value, err = units.Convert(b.Upper.Value, from, to); err != nil {
			return Bounds{}, err
		}
	}
	return out, nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%s, %s]", b.Lower, b.Upper)
}

// =============================================================================
// Provenance
// =============================================================================

// SourceKind classifies where a quantity's value came from.
type SourceKind string

// Source kinds.
const (
	SourceInput   SourceKind = "input"
	SourceDerived SourceKind = "derived"
	SourceDefault SourceKind = "default"
)

// Source is the provenance of a quantity value.
type Source struct {
	Kind SourceKind
	Rule string // set only for SourceDerived
}

// Input is the provenance of a user-supplied value.
func Input() Source { return Source{Kind: SourceInput} }

// Derived is the provenance of a value computed by rule.
func Derived(rule string) Source { return Source{Kind: SourceDerived, Rule: rule} }

// Default is the provenance of a catalog default value.
func Default() Source { return Source{Kind: SourceDefault} }

func (s Source) String() string {
	if s.Kind == SourceDerived {
		return "derived(" + s.Rule + ")"
	}
	return string(s.Kind)
}

// =============================================================================
// Quantities
// =============================================================================

// QuantityDecl declares a quantity in a rule graph.
type QuantityDecl struct {
	Name        string
	Unit        units.Unit
	Bounds      Bounds
	Guess       Limit // initial estimate for cyclic groups
	Description string
}

// Quantity is a named, unit-tagged value. Quantities are values: every
// change produces a new Quantity.
type Quantity struct {
	Name      string
	Value     float64
	Unit      units.Unit
	Bounds    Bounds
	Source    Source
	Iteration int // fixed-point iteration that produced Value, 0 outside cycles
	Resolved  bool
}

// Unresolved returns the unresolved quantity declared by d.
func Unresolved(d QuantityDecl) Quantity {
	return Quantity{Name: d.Name, Unit: d.Unit, Bounds: d.Bounds}
}

// WithValue returns a resolved copy of q holding v.
func (q Quantity) WithValue(v float64, src Source) Quantity {
	q.Value = v
	q.Source = src
	q.Resolved = true
	return q
}

// WithIteration returns a copy of q tagged with iteration n.
func (q Quantity) WithIteration(n int) Quantity {
	q.Iteration = n
	return q
}

// WithinBounds reports whether q is resolved and its value lies within its bounds.
func (q Quantity) WithinBounds() bool {
	return q.Resolved && q.Bounds.Contains(q.Value)
}

// Finite reports whether q holds a finite value.
func (q Quantity) Finite() bool {
	return q.Resolved && !math.IsNaN(q.Value) && !math.IsInf(q.Value, 0)
}

// Measure returns the value of q with its unit.
func (q Quantity) Measure() units.Measure {
	return units.Of(q.Value, q.Unit)
}

func (q Quantity) String() string {
	if !q.Resolved {
		return q.Name + " = <unresolved>"
	}
	return fmt.Sprintf("%s = %s", q.Name, q.Measure())
}
