package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Measure is a value tagged with its unit.
type Measure struct {
	Value float64
	Unit  Unit
}

// Of returns a Measure of v in u.
func Of(v float64, u Unit) Measure {
	return Measure{Value: v, Unit: u}
}

// Scalar returns a dimensionless Measure.
func Scalar(v float64) Measure {
	return Measure{Value: v, Unit: One}
}

// ParseMeasure parses text like "0.05 m^3/s" or "2". A bare number is
// dimensionless.
func ParseMeasure(text string) (Measure, error) {
	text = strings.TrimSpace(text)
	num, sym, _ := strings.Cut(text, " ")
	if sym == "" {
		// "0.2m" style: split at the first rune that cannot start a number tail.
		i := strings.IndexFunc(num, func(r rune) bool {
			return (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E'
		})
		if i > 0 {
			num, sym = num[:i], num[i:]
		}
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Measure{}, fmt.Errorf("measure %q: %w", text, err)
	}
	if strings.TrimSpace(sym) == "" {
		return Scalar(v), nil
	}
	u, err := Parse(sym)
	if err != nil {
		return Measure{}, fmt.Errorf("measure %q: %w", text, err)
	}
	return Of(v, u), nil
}

// SI returns the value converted to the coherent SI unit.
func (m Measure) SI() float64 { return m.Unit.ToSI(m.Value) }

// In converts m to u.
func (m Measure) In(u Unit) (Measure, error) {
	v, err := Convert(m.Value, m.Unit, u)
	if err != nil {
		return Measure{}, err
	}
	return Of(v, u), nil
}

// Float returns the value of m expressed in u.
func (m Measure) Float(u Unit) (float64, error) {
	c, err := m.In(u)
	return c.Value, err
}

// Add returns m+o in m's unit.
func (m Measure) Add(o Measure) (Measure, error) {
	if !m.Unit.Compatible(o.Unit) {
		return Measure{}, &MismatchError{Op: "add", From: m.Unit, To: o.Unit}
	}
	v, _ := Convert(o.Value, o.Unit, m.Unit)
	return Of(m.Value+v, m.Unit), nil
}

// Sub returns m-o in m's unit.
func (m Measure) Sub(o Measure) (Measure, error) {
	if !m.Unit.Compatible(o.Unit) {
		return Measure{}, &MismatchError{Op: "subtract", From: m.Unit, To: o.Unit}
	}
	v, _ := Convert(o.Value, o.Unit, m.Unit)
	return Of(m.Value-v, m.Unit), nil
}

// Mul returns m*o in SI.
func (m Measure) Mul(o Measure) Measure {
	return Of(m.SI()*o.SI(), siUnit(m.Unit.Dim.add(o.Unit.Dim)))
}

// Div returns m/o in SI.
func (m Measure) Div(o Measure) Measure {
	return Of(m.SI()/o.SI(), siUnit(m.Unit.Dim.sub(o.Unit.Dim)))
}

// Times scales m by a dimensionless factor.
func (m Measure) Times(k float64) Measure {
	return Of(m.Value*k, m.Unit)
}

// Pow raises m to an integer power, in SI.
func (m Measure) Pow(n int8) Measure {
	return Of(math.Pow(m.SI(), float64(n)), siUnit(m.Unit.Dim.scale(n)))
}

// Sqrt returns the square root of m in SI. Every dimension exponent must be even.
func (m Measure) Sqrt() (Measure, error) {
	var d Dimension
	for i, e := range m.Unit.Dim {
		if e%2 != 0 {
			return Measure{}, &MismatchError{Op: "take square root of", From: m.Unit, To: m.Unit}
		}
		d[i] = e / 2
	}
	return Of(math.Sqrt(m.SI()), siUnit(d)), nil
}

// Finite reports whether the value is neither NaN nor infinite.
func (m Measure) Finite() bool {
	return !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0)
}

func (m Measure) String() string {
	if m.Unit.IsZero() || m.Unit.Dim.Dimensionless() && m.Unit.scale == 1 {
		return strconv.FormatFloat(m.Value, 'g', -1, 64)
	}
	return strconv.FormatFloat(m.Value, 'g', -1, 64) + " " + m.Unit.Symbol()
}
