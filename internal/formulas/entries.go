package formulas

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/pkg/core"
)

// UnitProcess is a built-in unit process definition.
type UnitProcess struct {
	Name        string
	Description string
	Fragment    rulegraph.Fragment
	Defaults    map[string]float64 // declared units
}

// UnitProcesses returns the built-in definitions in registration order.
func UnitProcesses() ([]UnitProcess, error) {
	builders := []func() (UnitProcess, error){
		StraightPipe,
		PipeHeadLoss,
		TubeFlocculator,
		FlocGrowth,
		SedimentationTank,
		PipeSchedule,
	}
	out := make([]UnitProcess, 0, len(builders))
	for _, build := range builders {
		up, err := build()
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, nil
}

func compose(name string, fragments ...rulegraph.Fragment) (rulegraph.Fragment, error) {
	f, err := rulegraph.Compose(name, fragments...)
	if err != nil {
		return rulegraph.Fragment{}, fmt.Errorf("unit process %s: %w", name, err)
	}
	return f, nil
}

// StraightPipe sizes a full-flowing circular pipe and keeps its velocity in
// the self-cleansing, low-erosion range.
func StraightPipe() (UnitProcess, error) {
	f, err := compose("StraightPipe", PipeArea(), PipeVelocity())
	if err != nil {
		return UnitProcess{}, err
	}
	return UnitProcess{
		Name:        "StraightPipe",
		Description: "Full circular pipe: area and mean velocity from flow and diameter",
		Fragment:    f.Override(map[string]core.Bounds{"velocity": core.Between(0.2, 2.0)}),
	}, nil
}

// PipeHeadLoss computes major losses with the Colebrook friction factor.
func PipeHeadLoss() (UnitProcess, error) {
	f, err := compose("PipeHeadLoss",
		Water(), PipeArea(), PipeVelocity(), Reynolds(), ColebrookFriction(), DarcyHeadLoss())
	if err != nil {
		return UnitProcess{}, err
	}
	return UnitProcess{
		Name:        "PipeHeadLoss",
		Description: "Darcy-Weisbach head loss in turbulent pipe flow",
		Fragment:    f.Override(map[string]core.Bounds{"reynolds": core.AtLeast(4000)}),
		Defaults: map[string]float64{
			"temperature": 293.15,
			"roughness":   0.0015,
		},
	}, nil
}

// TubeFlocculator evaluates a coiled tube flocculator.
func TubeFlocculator() (UnitProcess, error) {
	f, err := compose("TubeFlocculator", Water(), Flocculator())
	if err != nil {
		return UnitProcess{}, err
	}
	return UnitProcess{
		Name:        "TubeFlocculator",
		Description: "Coiled tube flocculator velocity gradient and collision potential",
		Fragment:    f,
		Defaults:    map[string]float64{"temperature": 293.15},
	}, nil
}

// FlocGrowth follows a clay floc from primary particle to target size under
// a given energy dissipation rate.
func FlocGrowth() (UnitProcess, error) {
	f, err := compose("FlocGrowth", Water(), FlocModel())
	if err != nil {
		return UnitProcess{}, err
	}
	return UnitProcess{
		Name:        "FlocGrowth",
		Description: "Fractal floc growth, settling velocity and turbulence length scales",
		Fragment:    f,
		Defaults: map[string]float64{
			"temperature":          293.15,
			"fractal_dimension":    FractalDimension,
			"initial_diameter":     ClayDiameter * 1e6,
			"initial_floc_density": ClayDensity,
		},
	}, nil
}

// SedimentationTank sizes an upflow sedimentation tank.
func SedimentationTank() (UnitProcess, error) {
	f, err := compose("SedimentationTank", Sedimentation())
	if err != nil {
		return UnitProcess{}, err
	}
	return UnitProcess{
		Name:        "SedimentationTank",
		Description: "Rectangular upflow sedimentation tank",
		Fragment:    f,
		Defaults: map[string]float64{
			"upflow_velocity": 1,
			"width":           1.07,
			"depth":           2,
		},
	}, nil
}

// PipeSchedule rounds a velocity-limited bore up to the next stock pipe.
func PipeSchedule() (UnitProcess, error) {
	f, err := compose("PipeSchedule", Schedule(), PipeVelocity())
	if err != nil {
		return UnitProcess{}, err
	}
	return UnitProcess{
		Name:        "PipeSchedule",
		Description: "Stock schedule 40 pipe for a flow and velocity limit",
		Fragment:    f,
		Defaults:    map[string]float64{"max_velocity": 1.5},
	}, nil
}

var fragments = map[string]func() rulegraph.Fragment{
	"water":            Water,
	"pipe_area":        PipeArea,
	"pipe_velocity":    PipeVelocity,
	"reynolds":         Reynolds,
	"colebrook":        ColebrookFriction,
	"darcy":            DarcyHeadLoss,
	"tube_flocculator": Flocculator,
	"floc_model":       FlocModel,
	"sedimentation":    Sedimentation,
	"pipe_schedule":    Schedule,
}

// FragmentNamed returns a fresh copy of the named built-in fragment.
func FragmentNamed(name string) (rulegraph.Fragment, bool) {
	build, ok := fragments[name]
	if !ok {
		return rulegraph.Fragment{}, false
	}
	return build(), true
}

// FragmentNames lists the built-in fragments in lexical order.
func FragmentNames() []string {
	names := make([]string, 0, len(fragments))
	for name := range fragments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
