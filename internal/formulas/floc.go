package formulas

import (
	"math"

	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Floc model constants.
const (
	FractalDimension = 2.3       // fractal dimension of clay-coagulant flocs (Adachi)
	ClayDiameter     = 7e-6      // m
	ClayDensity      = 2650.0    // kg/m^3
	RatioKolmogorov  = 50.0      // inner viscous length over Kolmogorov length
	FlocShapeFactor  = 45.0 / 24 // drag shape factor in the terminal velocity
)

// maxFlocScale is the floc diameter at 1 W/kg mean energy dissipation in a
// laminar tube flocculator, in m.
const maxFlocScale = 9.5e-5

var (
	micrometer  = units.MustParse("um")
	wattPerKilo = units.MustParse("W/kg")
)

// FractalDiameter returns the diameter of a floc grown from initial by
// collisions doubling collisions.
func FractalDiameter(fractalDim, initial, collisions float64) float64 {
	return initial * math.Pow(2, collisions/fractalDim)
}

// CollisionsRequired returns the doubling collisions that grow a floc from
// initial to target diameter.
func CollisionsRequired(fractalDim, initial, target float64) float64 {
	return fractalDim * math.Log2(target/initial)
}

// KolmogorovLength returns the Kolmogorov length scale in m for kinematic
// viscosity nu (m^2/s) and energy dissipation rate eps (W/kg).
func KolmogorovLength(nu, eps float64) float64 {
	return math.Pow(nu*nu*nu/eps, 0.25)
}

// ViscousLength returns the inner viscous length scale in m.
func ViscousLength(nu, eps float64) float64 {
	return RatioKolmogorov * KolmogorovLength(nu, eps)
}

// MaxFlocDiameter returns the largest floc that survives a mean energy
// dissipation rate eps (W/kg).
func MaxFlocDiameter(eps float64) float64 {
	return maxFlocScale / math.Cbrt(eps)
}

// EnergyDissipationFor is the inverse of MaxFlocDiameter.
func EnergyDissipationFor(diameter float64) float64 {
	r := maxFlocScale / diameter
	return r * r * r
}

// FlocDensity returns the density of a floc of diameter target grown from
// flocs of diameter initial and density initialDensity in water of density
// waterDensity.
func FlocDensity(initialDensity, waterDensity, fractalDim, initial, target float64) float64 {
	return (initialDensity-waterDensity)*math.Pow(initial/target, 3-fractalDim) + waterDensity
}

// FlocTerminalVelocity returns the settling velocity in m/s of a floc of
// diameter target.
func FlocTerminalVelocity(initialDensity, waterDensity, nu, fractalDim, initial, target float64) float64 {
	stokes := Gravity * initial * initial / (18 * FlocShapeFactor * nu)
	return stokes * (initialDensity - waterDensity) / waterDensity * math.Pow(target/initial, fractalDim-1)
}

// FlocModel grows fractal flocs and relates their size to settling velocity
// and to the turbulence they are exposed to.
func FlocModel() rulegraph.Fragment {
	return rulegraph.Fragment{
		Name: "floc_model",
		Decls: []core.QuantityDecl{
			viscosityDecl(),
			waterDensityDecl(),
			decl("fractal_dimension", dimensionless, core.Between(1, 3), "fractal dimension of the flocs"),
			decl("initial_diameter", micrometer, core.AtLeast(0), "diameter of the primary particles"),
			decl("initial_floc_density", units.Density, core.AtLeast(0), "density of the primary particles"),
			decl("target_diameter", micrometer, core.AtLeast(0), "floc diameter to grow to"),
			decl("energy_dissipation", wattPerKilo, core.AtLeast(0), "mean energy dissipation rate"),
			decl("collisions_required", dimensionless, core.AtLeast(0), "doubling collisions to reach the target"),
			decl("kolmogorov_length", millimeter, core.AtLeast(0), "Kolmogorov length scale"),
			decl("viscous_length", millimeter, core.AtLeast(0), "inner viscous length scale"),
			decl("max_floc_diameter", micrometer, core.AtLeast(0), "largest floc that survives the shear"),
			decl("floc_density", units.Density, core.AtLeast(0), "density of the target floc"),
			decl("terminal_velocity", mmPerSecond, core.AtLeast(0), "settling velocity of the target floc"),
		},
		Rules: []core.Rule{
			{
				Name:        "collisions_required",
				Description: "Df log2(dT / d0)",
				Inputs:      []string{"fractal_dimension", "initial_diameter", "target_diameter"},
				Output:      "collisions_required",
				Compute: siScalar(dimensionless, func(in core.Inputs) (float64, error) {
					return CollisionsRequired(si(in, "fractal_dimension"), si(in, "initial_diameter"), si(in, "target_diameter")), nil
				}),
			},
			{
				Name:        "kolmogorov_length",
				Description: "(nu^3 / eps)^(1/4)",
				Inputs:      []string{"kinematic_viscosity", "energy_dissipation"},
				Output:      "kolmogorov_length",
				Compute: siScalar(units.Meter, func(in core.Inputs) (float64, error) {
					return KolmogorovLength(si(in, "kinematic_viscosity"), si(in, "energy_dissipation")), nil
				}),
			},
			{
				Name:        "viscous_length",
				Description: "50 eta",
				Inputs:      []string{"kolmogorov_length"},
				Output:      "viscous_length",
				Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
					return in.Measure("kolmogorov_length").Times(RatioKolmogorov), nil
				}),
			},
			{
				Name:        "max_floc_diameter",
				Description: "95 um / eps^(1/3)",
				Inputs:      []string{"energy_dissipation"},
				Output:      "max_floc_diameter",
				Compute: siScalar(units.Meter, func(in core.Inputs) (float64, error) {
					return MaxFlocDiameter(si(in, "energy_dissipation")), nil
				}),
			},
			{
				Name:        "floc_density",
				Description: "(rho0 - rhoW)(d0/dT)^(3-Df) + rhoW",
				Inputs:      []string{"initial_floc_density", "water_density", "fractal_dimension", "initial_diameter", "target_diameter"},
				Output:      "floc_density",
				Compute: siScalar(units.Density, func(in core.Inputs) (float64, error) {
					return FlocDensity(si(in, "initial_floc_density"), si(in, "water_density"),
						si(in, "fractal_dimension"), si(in, "initial_diameter"), si(in, "target_diameter")), nil
				}),
			},
			{
				Name:        "terminal_velocity",
				Description: "g d0^2 / (18 phi nu) (rho0 - rhoW)/rhoW (dT/d0)^(Df-1)",
				Inputs: []string{
					"initial_floc_density", "water_density", "kinematic_viscosity",
					"fractal_dimension", "initial_diameter", "target_diameter",
				},
				Output: "terminal_velocity",
				Compute: siScalar(units.Velocity, func(in core.Inputs) (float64, error) {
					return FlocTerminalVelocity(si(in, "initial_floc_density"), si(in, "water_density"),
						si(in, "kinematic_viscosity"), si(in, "fractal_dimension"),
						si(in, "initial_diameter"), si(in, "target_diameter")), nil
				}),
			},
		},
	}
}
