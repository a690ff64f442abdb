package formulas

import (
	"errors"
	"math"

	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

var (
	millimeter    = units.MustParse("mm")
	mmPerSecond   = units.MustParse("mm/s")
	hour          = units.MustParse("h")
	squareMeter   = units.SquareMeter
	dimensionless = units.One
)

// si returns the value of name in SI units. Definitions may redeclare a
// quantity in another compatible unit, so correlations never read raw values.
func si(in core.Inputs, name string) float64 {
	return in.Measure(name).SI()
}

// siScalar adapts a correlation evaluated in SI whose result is in out.
func siScalar(out units.Unit, fn func(in core.Inputs) (float64, error)) core.Computer {
	return core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
		v, err := fn(in)
		if err != nil {
			return units.Measure{}, err
		}
		return units.Of(v, out), nil
	})
}

func decl(name string, u units.Unit, b core.Bounds, desc string) core.QuantityDecl {
	return core.QuantityDecl{Name: name, Unit: u, Bounds: b, Description: desc}
}

// Shared declarations. Fragments that mention the same quantity must declare
// it identically to be composed.
func flowDecl() core.QuantityDecl {
	return decl("flow", units.FlowRate, core.AtLeast(0), "volumetric flow rate")
}

func diameterDecl() core.QuantityDecl {
	return decl("diameter", units.Meter, core.AtLeast(0), "pipe inner diameter")
}

func areaDecl() core.QuantityDecl {
	return decl("area", squareMeter, core.AtLeast(0), "flow cross-section")
}

func velocityDecl() core.QuantityDecl {
	return decl("velocity", units.Velocity, core.AtLeast(0), "mean flow velocity")
}

func viscosityDecl() core.QuantityDecl {
	return decl("kinematic_viscosity", units.Viscosity, core.AtLeast(0), "kinematic viscosity of water")
}

func waterDensityDecl() core.QuantityDecl {
	return decl("water_density", units.Density, core.AtLeast(0), "density of water")
}

func frictionDecl() core.QuantityDecl {
	d := decl("friction", dimensionless, core.Between(0.005, 0.1), "Darcy friction factor")
	d.Guess = core.LimitOf(0.02)
	return d
}

func reynoldsDecl() core.QuantityDecl {
	return decl("reynolds", dimensionless, core.AtLeast(0), "Reynolds number")
}

// Water derives water properties from temperature.
func Water() rulegraph.Fragment {
	return rulegraph.Fragment{
		Name: "water",
		Decls: []core.QuantityDecl{
			decl("temperature", units.Kelvin, core.Between(MinWaterTemperature, MaxWaterTemperature), "water temperature"),
			viscosityDecl(),
			waterDensityDecl(),
		},
		Rules: []core.Rule{
			{
				Name:        "kinematic_viscosity",
				Description: "dynamic viscosity over density",
				Inputs:      []string{"temperature"},
				Output:      "kinematic_viscosity",
				Compute: siScalar(units.Viscosity, func(in core.Inputs) (float64, error) {
					return WaterKinematicViscosity(si(in, "temperature"))
				}),
			},
			{
				Name:   "water_density",
				Inputs: []string{"temperature"},
				Output: "water_density",
				Compute: siScalar(units.Density, func(in core.Inputs) (float64, error) {
					return WaterDensity(si(in, "temperature"))
				}),
			},
		},
	}
}

// PipeArea derives the flow area of a full circular pipe.
func PipeArea() rulegraph.Fragment {
	return rulegraph.Fragment{
		Name:  "pipe_area",
		Decls: []core.QuantityDecl{diameterDecl(), areaDecl()},
		Rules: []core.Rule{areaRule("area", "diameter")},
	}
}

func areaRule(name, diameter string) core.Rule {
	return core.Rule{
		Name:        name,
		Description: "pi/4 d^2",
		Inputs:      []string{diameter},
		Output:      "area",
		Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
			return in.Measure(diameter).Pow(2).Times(math.Pi / 4), nil
		}),
	}
}

// PipeVelocity derives mean velocity from flow and area.
func PipeVelocity() rulegraph.Fragment {
	return rulegraph.Fragment{
		Name:  "pipe_velocity",
		Decls: []core.QuantityDecl{flowDecl(), areaDecl(), velocityDecl()},
		Rules: []core.Rule{{
			Name:        "velocity",
			Description: "flow over area",
			Inputs:      []string{"flow", "area"},
			Output:      "velocity",
			Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
				return in.Measure("flow").Div(in.Measure("area")), nil
			}),
		}},
	}
}

// Reynolds derives the pipe Reynolds number.
func Reynolds() rulegraph.Fragment {
	return rulegraph.Fragment{
		Name:  "reynolds",
		Decls: []core.QuantityDecl{velocityDecl(), diameterDecl(), viscosityDecl(), reynoldsDecl()},
		Rules: []core.Rule{{
			Name:        "reynolds",
			Description: "v d / nu",
			Inputs:      []string{"velocity", "diameter", "kinematic_viscosity"},
			Output:      "reynolds",
			Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
				return in.Measure("velocity").Mul(in.Measure("diameter")).Div(in.Measure("kinematic_viscosity")), nil
			}),
		}},
	}
}

// ColebrookFriction solves the Colebrook-White equation for the Darcy
// friction factor. The rule reads its own output, so it resolves by
// fixed-point iteration.
func ColebrookFriction() rulegraph.Fragment {
	return rulegraph.Fragment{
		Name: "colebrook",
		Decls: []core.QuantityDecl{
			frictionDecl(),
			decl("roughness", millimeter, core.AtLeast(0), "absolute wall roughness"),
			diameterDecl(),
			reynoldsDecl(),
		},
		Rules: []core.Rule{{
			Name:        "colebrook",
			Description: "1/sqrt(f) = -2 log10(e/3.7d + 2.51/(Re sqrt(f)))",
			Inputs:      []string{"friction", "reynolds", "roughness", "diameter"},
			Output:      "friction",
			Compute: siScalar(dimensionless, func(in core.Inputs) (float64, error) {
				f := si(in, "friction")
				if f <= 0 {
					return 0, errors.New("friction factor estimate is not positive")
				}
				rel := si(in, "roughness") / (3.7 * si(in, "diameter"))
				x := -2 * math.Log10(rel+2.51/(si(in, "reynolds")*math.Sqrt(f)))
				return 1 / (x * x), nil
			}),
		}},
	}
}

// DarcyHeadLoss derives major head loss from the Darcy-Weisbach equation.
func DarcyHeadLoss() rulegraph.Fragment {
	return rulegraph.Fragment{
		Name: "darcy",
		Decls: []core.QuantityDecl{
			frictionDecl(),
			decl("length", units.Meter, core.AtLeast(0), "pipe length"),
			diameterDecl(),
			velocityDecl(),
			decl("head_loss", units.Meter, core.AtLeast(0), "major head loss"),
		},
		Rules: []core.Rule{{
			Name:        "head_loss",
			Description: "f L/d v^2/2g",
			Inputs:      []string{"friction", "length", "diameter", "velocity"},
			Output:      "head_loss",
			Compute: siScalar(units.Meter, func(in core.Inputs) (float64, error) {
				v := si(in, "velocity")
				return si(in, "friction") * si(in, "length") / si(in, "diameter") * v * v / (2 * Gravity), nil
			}),
		}},
	}
}

// Flocculator holds the coiled tube flocculator correlations.
func Flocculator() rulegraph.Fragment {
	floc := func(name, desc string, out units.Unit, inputs []string, fn func(in core.Inputs) float64) core.Rule {
		return core.Rule{
			Name:        name,
			Description: desc,
			Inputs:      inputs,
			Output:      name,
			Compute: siScalar(out, func(in core.Inputs) (float64, error) {
				return fn(in), nil
			}),
		}
	}

	return rulegraph.Fragment{
		Name: "tube_flocculator",
		Decls: []core.QuantityDecl{
			flowDecl(),
			decl("tube_diameter", units.Meter, core.AtLeast(0), "tube inner diameter"),
			decl("coil_radius", units.Meter, core.AtLeast(0), "radius of the tube coil"),
			decl("tube_length", units.Meter, core.AtLeast(0), "tube length"),
			viscosityDecl(),
			decl("g_straight", units.PerSecond, core.AtLeast(0), "velocity gradient in a straight tube"),
			reynoldsDecl(),
			decl("dean_number", dimensionless, core.AtLeast(0), "Dean number of the coil"),
			decl("g_coil", units.PerSecond, core.AtLeast(0), "velocity gradient in the coil"),
			decl("residence_time", units.Second, core.AtLeast(0), "hydraulic residence time"),
			decl("g_theta", dimensionless, core.AtLeast(0), "collision potential"),
		},
		Rules: []core.Rule{
			floc("g_straight", "64 Q / (3 pi d^3)", units.PerSecond, []string{"flow", "tube_diameter"}, func(in core.Inputs) float64 {
				return 64 * si(in, "flow") / (3 * math.Pi * math.Pow(si(in, "tube_diameter"), 3))
			}),
			{
				Name:        "tube_reynolds",
				Description: "4 Q / (pi d nu)",
				Inputs:      []string{"flow", "tube_diameter", "kinematic_viscosity"},
				Output:      "reynolds",
				Compute: siScalar(dimensionless, func(in core.Inputs) (float64, error) {
					return 4 * si(in, "flow") / (math.Pi * si(in, "tube_diameter") * si(in, "kinematic_viscosity")), nil
				}),
			},
			floc("dean_number", "Re sqrt(d / 2R)", dimensionless, []string{"reynolds", "tube_diameter", "coil_radius"}, func(in core.Inputs) float64 {
				return si(in, "reynolds") * math.Sqrt(si(in, "tube_diameter")/(2*si(in, "coil_radius")))
			}),
			floc("g_coil", "G straight (1 + 0.033 log10(De)^4)^0.5", units.PerSecond, []string{"g_straight", "dean_number"}, func(in core.Inputs) float64 {
				return si(in, "g_straight") * math.Sqrt(1+0.033*math.Pow(math.Log10(si(in, "dean_number")), 4))
			}),
			floc("residence_time", "L pi d^2/4 / Q", units.Second, []string{"tube_length", "tube_diameter", "flow"}, func(in core.Inputs) float64 {
				d := si(in, "tube_diameter")
				return si(in, "tube_length") * math.Pi * d * d / 4 / si(in, "flow")
			}),
			floc("g_theta", "G coil times residence time", dimensionless, []string{"g_coil", "residence_time"}, func(in core.Inputs) float64 {
				return si(in, "g_coil") * si(in, "residence_time")
			}),
		},
	}
}

// Sedimentation sizes a rectangular upflow sedimentation tank.
func Sedimentation() rulegraph.Fragment {
	return rulegraph.Fragment{
		Name: "sedimentation",
		Decls: []core.QuantityDecl{
			flowDecl(),
			decl("upflow_velocity", mmPerSecond, core.Between(0.1, 5), "upflow velocity through the plate settlers"),
			decl("width", units.Meter, core.Between(0.3, 10), "tank width"),
			decl("depth", units.Meter, core.Between(0.5, 6), "water depth"),
			decl("plan_area", squareMeter, core.AtLeast(0), "tank plan area"),
			decl("length", units.Meter, core.AtLeast(0), "tank length"),
			decl("volume", units.CubicMeter, core.AtLeast(0), "tank volume"),
			decl("detention_time", hour, core.AtMost(8), "hydraulic detention time"),
		},
		Rules: []core.Rule{
			measureRule("plan_area", "flow", "upflow_velocity", units.Measure.Div),
			measureRule("length", "plan_area", "width", units.Measure.Div),
			measureRule("volume", "plan_area", "depth", units.Measure.Mul),
			measureRule("detention_time", "volume", "flow", units.Measure.Div),
		},
	}
}

// measureRule derives name = op(a, b) with unit tracking.
func measureRule(name, a, b string, op func(units.Measure, units.Measure) units.Measure) core.Rule {
	return core.Rule{
		Name:   name,
		Inputs: []string{a, b},
		Output: name,
		Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
			return op(in.Measure(a), in.Measure(b)), nil
		}),
	}
}

// Schedule picks the stock pipe for a flow and velocity limit.
func Schedule() rulegraph.Fragment {
	lookup := func(name string, fn func(nominal units.Measure) (units.Measure, error)) core.Rule {
		return core.Rule{
			Name:   name,
			Inputs: []string{"nominal_diameter"},
			Output: name,
			Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
				return fn(in.Measure("nominal_diameter"))
			}),
		}
	}

	return rulegraph.Fragment{
		Name: "pipe_schedule",
		Decls: []core.QuantityDecl{
			flowDecl(),
			decl("max_velocity", units.Velocity, core.Between(0.1, 5), "velocity limit used to size the pipe"),
			decl("min_inner_diameter", units.Meter, core.AtLeast(0), "smallest acceptable inner diameter"),
			decl("nominal_diameter", Inch, core.AtLeast(0), "nominal pipe size"),
			decl("inner_diameter", Inch, core.AtLeast(0), "schedule 40 inner diameter"),
			decl("outer_diameter", Inch, core.AtLeast(0), "outer diameter"),
			areaDecl(),
		},
		Rules: []core.Rule{
			{
				Name:        "min_inner_diameter",
				Description: "sqrt(4Q / (pi v))",
				Inputs:      []string{"flow", "max_velocity"},
				Output:      "min_inner_diameter",
				Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
					return in.Measure("flow").Div(in.Measure("max_velocity")).Times(4 / math.Pi).Sqrt()
				}),
			},
			{
				Name:        "nominal_diameter",
				Description: "smallest stock size with a large enough bore",
				Inputs:      []string{"min_inner_diameter"},
				Output:      "nominal_diameter",
				Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
					p, err := NominalFor(in.Measure("min_inner_diameter"))
					if err != nil {
						return units.Measure{}, err
					}
					return units.Of(p.Nominal, Inch), nil
				}),
			},
			lookup("inner_diameter", InnerDiameter),
			lookup("outer_diameter", OuterDiameter),
			areaRule("bore_area", "inner_diameter"),
		},
	}
}
