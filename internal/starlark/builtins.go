package starlark

import (
	"fmt"

	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/unitdesign/internal/formulas"
)

// Predeclared returns the globals every formula module sees:
//
//	math     the Starlark math module (sqrt, pow, log, exp, pi, ...)
//	water    water properties by temperature in kelvin
//	GRAVITY  standard gravity in m/s^2
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"math":    math.Module,
		"water":   waterModule,
		"GRAVITY": starlark.Float(formulas.Gravity),
	}
}

var waterModule = &starlarkstruct.Module{
	Name: "water",
	Members: starlark.StringDict{
		"density":             temperatureFunc("density", formulas.WaterDensity),
		"dynamic_viscosity":   temperatureFunc("dynamic_viscosity", formulas.WaterDynamicViscosity),
		"kinematic_viscosity": temperatureFunc("kinematic_viscosity", formulas.WaterKinematicViscosity),
	},
}

func temperatureFunc(name string, fn func(kelvin float64) (float64, error)) *starlark.Builtin {
	return starlark.NewBuiltin("water."+name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var t starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &t); err != nil {
			return nil, err
		}
		kelvin, ok := starlark.AsFloat(t)
		if !ok {
			return nil, fmt.Errorf("%s: temperature must be a number, got %s", b.Name(), t.Type())
		}
		v, err := fn(kelvin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.Float(v), nil
	})
}
