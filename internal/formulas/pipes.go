package formulas

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Inch is the unit pipe sizes are tabulated in.
var Inch = units.MustParse("in")

// PipeSize is one stock pipe size. Dimensions are in inches.
type PipeSize struct {
	Nominal float64
	Outer   float64
	Wall    float64 // schedule 40
}

// Inner returns the schedule 40 inner diameter in inches.
func (p PipeSize) Inner() float64 { return p.Outer - 2*p.Wall }

// pipeSizes is the stock table, ordered by nominal size.
var pipeSizes = []PipeSize{
	{Nominal: 0.125, Outer: 0.405, Wall: 0.068},
	{Nominal: 0.25, Outer: 0.540, Wall: 0.088},
	{Nominal: 0.375, Outer: 0.675, Wall: 0.091},
	{Nominal: 0.5, Outer: 0.840, Wall: 0.109},
	{Nominal: 0.75, Outer: 1.050, Wall: 0.113},
	{Nominal: 1, Outer: 1.315, Wall: 0.133},
	{Nominal: 1.25, Outer: 1.660, Wall: 0.140},
	{Nominal: 1.5, Outer: 1.900, Wall: 0.145},
	{Nominal: 2, Outer: 2.375, Wall: 0.154},
	{Nominal: 2.5, Outer: 2.875, Wall: 0.203},
	{Nominal: 3, Outer: 3.500, Wall: 0.216},
	{Nominal: 3.5, Outer: 4.000, Wall: 0.226},
	{Nominal: 4, Outer: 4.500, Wall: 0.237},
	{Nominal: 5, Outer: 5.563, Wall: 0.258},
	{Nominal: 6, Outer: 6.625, Wall: 0.280},
	{Nominal: 8, Outer: 8.625, Wall: 0.322},
	{Nominal: 10, Outer: 10.750, Wall: 0.365},
	{Nominal: 12, Outer: 12.750, Wall: 0.406},
}

// PipeSizes returns the stock table.
func PipeSizes() []PipeSize {
	out := make([]PipeSize, len(pipeSizes))
	copy(out, pipeSizes)
	return out
}

// LookupPipe returns the stock size with the given nominal diameter.
func LookupPipe(nominal units.Measure) (PipeSize, error) {
	nd, err := nominal.Float(Inch)
	if err != nil {
		return PipeSize{}, fmt.Errorf("nominal diameter: %w", err)
	}
	i := sort.Search(len(pipeSizes), func(i int) bool { return pipeSizes[i].Nominal >= nd-1e-9 })
	if i == len(pipeSizes) || pipeSizes[i].Nominal > nd+1e-9 {
		return PipeSize{}, fmt.Errorf("no stock pipe with nominal diameter %g in", nd)
	}
	return pipeSizes[i], nil
}

// OuterDiameter returns the outer diameter of the stock pipe with the given
// nominal diameter, in inches.
func OuterDiameter(nominal units.Measure) (units.Measure, error) {
	p, err := LookupPipe(nominal)
	if err != nil {
		return units.Measure{}, err
	}
	return units.Of(p.Outer, Inch), nil
}

// InnerDiameter returns the schedule 40 inner diameter, in inches.
func InnerDiameter(nominal units.Measure) (units.Measure, error) {
	p, err := LookupPipe(nominal)
	if err != nil {
		return units.Measure{}, err
	}
	return units.Of(p.Inner(), Inch), nil
}

// NominalFor returns the smallest stock pipe whose inner diameter is at
// least inner.
func NominalFor(inner units.Measure) (PipeSize, error) {
	id, err := inner.Float(Inch)
	if err != nil {
		return PipeSize{}, fmt.Errorf("inner diameter: %w", err)
	}
	i := sort.Search(len(pipeSizes), func(i int) bool { return pipeSizes[i].Inner() >= id })
	if i == len(pipeSizes) {
		return PipeSize{}, fmt.Errorf("inner diameter %g in exceeds the largest stock pipe", id)
	}
	return pipeSizes[i], nil
}
