// Package formulas holds the built-in engineering correlations and the unit
// process definitions assembled from them.
//
// Everything here is pure: fragments are rebuilt on every call so callers
// can compose and override them without affecting one another.
package formulas

import (
	"fmt"
	"math"
)

// Gravity is standard gravitational acceleration in m/s^2.
const Gravity = 9.80665

// Water property correlations are valid between freezing and boiling.
const (
	MinWaterTemperature = 273.15 // K
	MaxWaterTemperature = 373.15 // K
)

func checkTemperature(kelvin float64) error {
	if kelvin < MinWaterTemperature || kelvin > MaxWaterTemperature {
		return fmt.Errorf("water temperature %g K outside %g..%g K", kelvin, MinWaterTemperature, MaxWaterTemperature)
	}
	return nil
}

// WaterDensity returns the density of water in kg/m^3 at the given
// temperature in kelvin.
func WaterDensity(kelvin float64) (float64, error) {
	if err := checkTemperature(kelvin); err != nil {
		return 0, err
	}
	t := kelvin - 273.15
	return 1000 * (1 - (t+288.9414)/(508929.2*(t+68.12963))*(t-3.9863)*(t-3.9863)), nil
}

// WaterDynamicViscosity returns the dynamic viscosity of water in Pa*s.
func WaterDynamicViscosity(kelvin float64) (float64, error) {
	if err := checkTemperature(kelvin); err != nil {
		return 0, err
	}
	return 2.414e-5 * math.Pow(10, 247.8/(kelvin-140)), nil
}

// WaterKinematicViscosity returns the kinematic viscosity of water in m^2/s.
func WaterKinematicViscosity(kelvin float64) (float64, error) {
	mu, err := WaterDynamicViscosity(kelvin)
	if err != nil {
		return 0, err
	}
	rho, _ := WaterDensity(kelvin)
	return mu / rho, nil
}
