package units

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type atom struct {
	dim    Dimension
	scale  float64
	offset float64
}

var (
	dimL = Dimension{Length: 1}
	dimM = Dimension{Mass: 1}
	dimT = Dimension{Time: 1}
	dimK = Dimension{Temperature: 1}
	dimN = Dimension{Amount: 1}
)

// atoms are the unit symbols the parser understands.
var atoms = map[string]atom{
	"1":    {scale: 1},
	"m":    {dim: dimL, scale: 1},
	"mm":   {dim: dimL, scale: 1e-3},
	"cm":   {dim: dimL, scale: 1e-2},
	"km":   {dim: dimL, scale: 1e3},
	"nm":   {dim: dimL, scale: 1e-9},
	"um":   {dim: dimL, scale: 1e-6},
	"in":   {dim: dimL, scale: 0.0254},
	"inch": {dim: dimL, scale: 0.0254},
	"ft":   {dim: dimL, scale: 0.3048},
	"s":    {dim: dimT, scale: 1},
	"min":  {dim: dimT, scale: 60},
	"h":    {dim: dimT, scale: 3600},
	"hr":   {dim: dimT, scale: 3600},
	"day":  {dim: dimT, scale: 86400},
	"kg":   {dim: dimM, scale: 1},
	"g":    {dim: dimM, scale: 1e-3},
	"mg":   {dim: dimM, scale: 1e-6},
	"K":    {dim: dimK, scale: 1},
	"degC": {dim: dimK, scale: 1, offset: 273.15},
	"mol":  {dim: dimN, scale: 1},
	"L":    {dim: Dimension{Length: 3}, scale: 1e-3},
	"mL":   {dim: Dimension{Length: 3}, scale: 1e-6},
	"N":    {dim: Dimension{Length: 1, Mass: 1, Time: -2}, scale: 1},
	"Pa":   {dim: Dimension{Length: -1, Mass: 1, Time: -2}, scale: 1},
	"kPa":  {dim: Dimension{Length: -1, Mass: 1, Time: -2}, scale: 1e3},
	"J":    {dim: Dimension{Length: 2, Mass: 1, Time: -2}, scale: 1},
	"W":    {dim: Dimension{Length: 2, Mass: 1, Time: -3}, scale: 1},
	"mW":   {dim: Dimension{Length: 2, Mass: 1, Time: -3}, scale: 1e-3},
}

// Parse parses a unit symbol such as "m", "m^3/s", "kg/m^3" or "W/kg".
// Factors are joined with '*' or '.', powers use '^' and each '/' starts a
// divisor. Affine units (degC) cannot be combined with other factors.
// The returned unit keeps the input text as its symbol.
func Parse(symbol string) (Unit, error) {
	text := strings.TrimSpace(symbol)
	if text == "" {
		return Unit{}, fmt.Errorf("empty unit symbol")
	}

	parts := strings.Split(text, "/")
	u := Unit{symbol: text, scale: 1}
	factors := 0
	var offset float64

	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Unit{}, fmt.Errorf("unit %q: empty factor", text)
		}
		for _, f := range splitFactors(part) {
			name, exp, err := splitPower(f)
			if err != nil {
				return Unit{}, fmt.Errorf("unit %q: %w", text, err)
			}
			a, ok := atoms[name]
			if !ok {
				return Unit{}, fmt.Errorf("unit %q: unknown symbol %q", text, name)
			}
			if name == "1" && exp != 1 {
				return Unit{}, fmt.Errorf("unit %q: cannot raise 1 to a power", text)
			}
			if i > 0 {
				exp = -exp
			}
			if a.offset != 0 {
				offset = a.offset
			}
			if name != "1" {
				factors++
			}
			u.Dim = u.Dim.add(a.dim.scale(exp))
			u.scale *= pow(a.scale, exp)
		}
	}

	if offset != 0 {
		if factors != 1 || len(parts) != 1 || u.scale != 1 {
			return Unit{}, fmt.Errorf("unit %q: affine unit cannot be combined", text)
		}
		u.offset = offset
	}
	return u, nil
}

// MustParse is like Parse but panics on error. Intended for package-level
// unit declarations.
func MustParse(symbol string) Unit {
	u, err := Parse(symbol)
	if err != nil {
		panic(err)
	}
	return u
}

func splitFactors(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '*' || r == '.' || r == '·' || unicode.IsSpace(r)
	})
}

func splitPower(f string) (string, int8, error) {
	name, expText, found := strings.Cut(f, "^")
	if !found {
		return name, 1, nil
	}
	exp, err := strconv.ParseInt(expText, 10, 8)
	if err != nil || exp == 0 {
		return "", 0, fmt.Errorf("bad exponent in %q", f)
	}
	return name, int8(exp), nil
}

func pow(v float64, n int8) float64 {
	r := 1.0
	neg := n < 0
	if neg {
		n = -n
	}
	for i := int8(0); i < n; i++ {
		r *= v
	}
	if neg {
		return 1 / r
	}
	return r
}
