// Package units provides unit tags and unit-checked arithmetic for physical values.
//
// A Unit carries the symbol text it was declared with, its SI dimension and the
// factor that converts a value in the unit to SI. Arithmetic between values whose
// dimensions disagree fails with ErrMismatch instead of coercing.
package units

import (
	"errors"
	"fmt"
	"strings"
)

// Base dimensions, in the order stored in a Dimension.
const (
	Length = iota
	Mass
	Time
	Temperature
	Amount
	numBase
)

var baseSymbols = [numBase]string{"m", "kg", "s", "K", "mol"}

// Dimension is an exponent vector over the SI base dimensions.
type Dimension [numBase]int8

// Dimensionless reports whether every exponent is zero.
func (d Dimension) Dimensionless() bool {
	return d == Dimension{}
}

func (d Dimension) add(o Dimension) Dimension {
	for i := range d {
		d[i] += o[i]
	}
	return d
}

func (d Dimension) sub(o Dimension) Dimension {
	for i := range d {
		d[i] -= o[i]
	}
	return d
}

func (d Dimension) scale(n int8) Dimension {
	for i := range d {
		d[i] *= n
	}
	return d
}

// String renders the dimension as an SI symbol, e.g. "m^3/s".
func (d Dimension) String() string {
	var num, den []string
	for i, e := range d {
		switch {
		case e == 1:
			num = append(num, baseSymbols[i])
		case e > 1:
			num = append(num, fmt.Sprintf("%s^%d", baseSymbols[i], e))
		case e == -1:
			den = append(den, baseSymbols[i])
		case e < -1:
			den = append(den, fmt.Sprintf("%s^%d", baseSymbols[i], -e))
		}
	}
	n := strings.Join(num, "*")
	if n == "" {
		n = "1"
	}
	if len(den) == 0 {
		return n
	}
	return n + "/" + strings.Join(den, "/")
}

// ErrMismatch is returned when values of incompatible dimensions are combined
// or converted.
var ErrMismatch = errors.New("unit mismatch")

// MismatchError describes an operation that mixed incompatible units.
type MismatchError struct {
	Op   string
	From Unit
	To   Unit
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("unit mismatch: cannot %s %s (%s) and %s (%s)",
		e.Op, e.From.Symbol(), e.From.Dim, e.To.Symbol(), e.To.Dim)
}

func (e *MismatchError) Unwrap() error { return ErrMismatch }

// Unit is a named unit of measure. The zero Unit is not valid; use Parse,
// MustParse or one of the package-level units.
type Unit struct {
	symbol string
	Dim    Dimension
	scale  float64 // SI value of 1 unit
	offset float64 // affine offset, SI = v*scale + offset
}

// Common units.
var (
	One         = Unit{symbol: "1", scale: 1}
	Meter       = MustParse("m")
	Second      = MustParse("s")
	Kilogram    = MustParse("kg")
	Kelvin      = MustParse("K")
	SquareMeter = MustParse("m^2")
	CubicMeter  = MustParse("m^3")
	FlowRate    = MustParse("m^3/s")
	Velocity    = MustParse("m/s")
	Density     = MustParse("kg/m^3")
	Viscosity   = MustParse("m^2/s")
	PerSecond   = MustParse("1/s")
)

// Symbol returns the symbol text the unit was declared with.
func (u Unit) Symbol() string {
	if u.symbol == "" && u.scale != 0 {
		return u.Dim.String()
	}
	return u.symbol
}

func (u Unit) String() string { return u.Symbol() }

// IsZero reports whether u is the zero Unit.
func (u Unit) IsZero() bool { return u.scale == 0 }

// Compatible reports whether values in u can be converted to o.
func (u Unit) Compatible(o Unit) bool { return u.Dim == o.Dim }

// ToSI converts a value expressed in u to SI.
func (u Unit) ToSI(v float64) float64 { return v*u.scale + u.offset }

// FromSI converts an SI value to u.
func (u Unit) FromSI(v float64) float64 { return (v - u.offset) / u.scale }

// SI returns the coherent SI unit with the same dimension as u.
func (u Unit) SI() Unit { return siUnit(u.Dim) }

func siUnit(d Dimension) Unit {
	if d.Dimensionless() {
		return One
	}
	return Unit{symbol: d.String(), Dim: d, scale: 1}
}

// Convert converts v from unit from to unit to.
func Convert(v float64, from, to Unit) (float64, error) {
	if !from.Compatible(to) {
		return 0, &MismatchError{Op: "convert", From: from, To: to}
	}
	if from == to {
		return v, nil
	}
	return to.FromSI(from.ToSI(v)), nil
}

// MarshalText implements encoding.TextMarshaler using the declared symbol.
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.Symbol()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
