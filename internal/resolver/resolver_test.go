package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/internal/testutil"
	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

func newResolver(t *testing.T, mutate ...func(*Config)) *Resolver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = testutil.NewTestLogger(t)
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

// straightPipe builds velocity = flow / area, area = pi * (diameter/2)^2.
// calls counts rule evaluations.
func straightPipe(t *testing.T, calls *atomic.Int64) *rulegraph.Graph {
	t.Helper()
	g, err := rulegraph.New(
		[]core.QuantityDecl{
			{Name: "flow", Unit: units.FlowRate, Bounds: core.AtLeast(0)},
			{Name: "diameter", Unit: units.Meter, Bounds: core.AtLeast(0)},
			{Name: "area", Unit: units.SquareMeter},
			{Name: "velocity", Unit: units.Velocity},
		},
		[]core.Rule{
			{
				Name:   "area",
				Inputs: []string{"diameter"},
				Output: "area",
				Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
					calls.Add(1)
					return in.Measure("diameter").Times(0.5).Pow(2).Times(math.Pi), nil
				}),
			},
			{
				Name:   "velocity",
				Inputs: []string{"flow", "area"},
				Output: "velocity",
				Bounds: core.Between(0.2, 2.0),
				Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
					calls.Add(1)
					return in.Measure("flow").Div(in.Measure("area")), nil
				}),
			},
		},
	)
	require.NoError(t, err)
	return g
}

func TestResolve_StraightPipe(t *testing.T) {
	var calls atomic.Int64
	r := newResolver(t)

	rec, err := r.Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(0.05, units.FlowRate),
			"diameter": units.Of(0.2, units.Meter),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"area", "diameter", "flow", "velocity"}, rec.Names())
	area, _ := rec.Quantity("area")
	velocity, _ := rec.Quantity("velocity")
	assert.InDelta(t, 0.0314, area.Value, 1e-4)
	assert.InDelta(t, 1.59, velocity.Value, 0.01)
	assert.True(t, rec.ConstraintsSatisfied())
	assert.Equal(t, int64(2), calls.Load())

	// every derived quantity names a rule of the graph and lies in its bounds
	for _, q := range rec.Quantities() {
		switch q.Name {
		case "flow", "diameter":
			assert.Equal(t, core.SourceInput, q.Source.Kind)
		default:
			assert.Equal(t, core.Derived(q.Name), q.Source)
			assert.True(t, q.WithinBounds(), q.Name)
		}
	}
}

func TestResolve_ConstraintViolation(t *testing.T) {
	var calls atomic.Int64
	r := newResolver(t)

	rec, err := r.Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(0.05, units.FlowRate),
			"diameter": units.Of(0.05, units.Meter),
		},
	})
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, core.ErrConstraintViolation)

	var cv *core.ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "velocity", cv.Rule)
	assert.InDelta(t, 25.46, cv.Value, 0.01)
	assert.Equal(t, 2.0, cv.Bound)
	assert.Equal(t, core.SideUpper, cv.Side)
}

func TestResolve_InputsConvertedToDeclaredUnits(t *testing.T) {
	var calls atomic.Int64
	rec, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(50, units.MustParse("L/s")),
			"diameter": units.Of(200, units.MustParse("mm")),
		},
	})
	require.NoError(t, err)

	flow, _ := rec.Quantity("flow")
	assert.InDelta(t, 0.05, flow.Value, 1e-12)
	assert.Equal(t, "m^3/s", flow.Unit.Symbol())
	v, _ := rec.Value("velocity")
	assert.InDelta(t, 1.59, v, 0.01)
}

func TestResolve_Deterministic(t *testing.T) {
	var calls atomic.Int64
	g := straightPipe(t, &calls)
	req := Request{
		UnitProcess: "StraightPipe",
		Graph:       g,
		Inputs: map[string]units.Measure{
			"flow":     units.Of(0.05, units.FlowRate),
			"diameter": units.Of(0.2, units.Meter),
		},
	}

	var docs []string
	for i := 0; i < 3; i++ {
		rec, err := newResolver(t).Resolve(context.Background(), req)
		require.NoError(t, err)
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		docs = append(docs, string(data))
	}
	assert.Equal(t, docs[0], docs[1])
	assert.Equal(t, docs[0], docs[2])
}

func TestResolve_InvalidInputBeforeAnyRule(t *testing.T) {
	var calls atomic.Int64
	_, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(-0.05, units.FlowRate),
			"diameter": units.Of(-1, units.Meter),
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.NotErrorIs(t, err, core.ErrConstraintViolation)
	assert.Equal(t, int64(0), calls.Load(), "no rule may run")

	// both offending inputs are reported
	assert.Contains(t, err.Error(), "diameter")
	assert.Contains(t, err.Error(), "flow")
}

func TestResolve_UserValueOutsideDerivedBounds(t *testing.T) {
	var calls atomic.Int64
	_, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(0.05, units.FlowRate),
			"diameter": units.Of(0.2, units.Meter),
			"velocity": units.Of(3, units.Velocity),
		},
	})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, int64(0), calls.Load())
}

func TestResolve_UserValueIsAuthoritative(t *testing.T) {
	var calls atomic.Int64
	rec, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(0.05, units.FlowRate),
			"diameter": units.Of(0.2, units.Meter),
			"area":     units.Of(0.05, units.SquareMeter),
		},
	})
	require.NoError(t, err)

	area, _ := rec.Quantity("area")
	assert.Equal(t, core.Input(), area.Source)
	assert.Equal(t, 0.05, area.Value)
	v, _ := rec.Value("velocity")
	assert.InDelta(t, 1.0, v, 1e-12)
	assert.Equal(t, int64(1), calls.Load(), "area rule skipped")
}

func TestResolve_Underspecified(t *testing.T) {
	var calls atomic.Int64
	_, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow": units.Of(0.05, units.FlowRate),
			"area": units.Of(0.03, units.SquareMeter),
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnderspecified)

	var under *core.UnderspecifiedError
	require.ErrorAs(t, err, &under)
	assert.Equal(t, []string{"diameter"}, under.Missing)
	assert.Equal(t, int64(0), calls.Load())

	_, err = newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
	})
	require.ErrorAs(t, err, &under)
	assert.Equal(t, []string{"diameter", "flow"}, under.Missing)
}

func TestResolve_UnknownInputRejected(t *testing.T) {
	var calls atomic.Int64
	_, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(0.05, units.FlowRate),
			"diameter": units.Of(0.2, units.Meter),
			"colour":   units.Scalar(3),
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownQuantity)

	var uq *core.UnknownQuantityError
	require.ErrorAs(t, err, &uq)
	assert.Equal(t, "colour", uq.Name)
}

func TestResolve_UnitMismatch(t *testing.T) {
	var calls atomic.Int64
	_, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(0.05, units.Velocity),
			"diameter": units.Of(0.2, units.Meter),
		},
	})
	assert.ErrorIs(t, err, core.ErrUnitMismatch)
	assert.Equal(t, int64(0), calls.Load())
}

func TestResolve_Defaults(t *testing.T) {
	var calls atomic.Int64
	rec, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs:      map[string]units.Measure{"flow": units.Of(0.05, units.FlowRate)},
		Defaults:    map[string]float64{"diameter": 0.2, "area": 99},
	})
	require.NoError(t, err)

	d, _ := rec.Quantity("diameter")
	assert.Equal(t, core.Default(), d.Source)
	area, _ := rec.Quantity("area")
	assert.Equal(t, core.Derived("area"), area.Source, "defaults never override rules")

	_, err = newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs:      map[string]units.Measure{"flow": units.Of(0.05, units.FlowRate)},
		Defaults:    map[string]float64{"diameter": -1},
	})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestResolve_ComputationError(t *testing.T) {
	g, err := rulegraph.New(
		[]core.QuantityDecl{{Name: "x", Unit: units.One}, {Name: "y", Unit: units.One}},
		[]core.Rule{{
			Name:    "inverse",
			Inputs:  []string{"x"},
			Output:  "y",
			Compute: core.Scalar(func(in core.Inputs) (float64, error) { return 1 / in.Float("x"), nil }),
		}},
	)
	require.NoError(t, err)

	_, err = newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "Inverse",
		Graph:       g,
		Inputs:      map[string]units.Measure{"x": units.Scalar(0)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrComputation)

	var ce *core.ComputationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "inverse", ce.Rule)
	assert.Equal(t, map[string]float64{"x": 0}, ce.Inputs)
	assert.Contains(t, ce.Reason, "+Inf")
}

func TestResolve_RuleErrorsAndPanics(t *testing.T) {
	tests := []struct {
		name    string
		compute core.Computer
		wantErr error
	}{
		{
			name: "declared failure",
			compute: core.Scalar(func(core.Inputs) (float64, error) {
				return 0, core.Undefined("negative radicand")
			}),
			wantErr: core.ErrUndefined,
		},
		{
			name: "wrong result unit",
			compute: core.ComputeFunc(func(core.Inputs) (units.Measure, error) {
				return units.Of(1, units.Second), nil
			}),
			wantErr: core.ErrUnitMismatch,
		},
		{
			name: "panic",
			compute: core.Scalar(func(core.Inputs) (float64, error) {
				panic("boom")
			}),
			wantErr: core.ErrComputation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := rulegraph.New(
				[]core.QuantityDecl{{Name: "x", Unit: units.Meter}, {Name: "y", Unit: units.Meter}},
				[]core.Rule{{Name: "y", Inputs: []string{"x"}, Output: "y", Compute: tt.compute}},
			)
			require.NoError(t, err)

			_, err = newResolver(t).Resolve(context.Background(), Request{
				UnitProcess: "T",
				Graph:       g,
				Inputs:      map[string]units.Measure{"x": units.Of(1, units.Meter)},
			})
			assert.ErrorIs(t, err, core.ErrComputation)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolve_RuleResultConverted(t *testing.T) {
	g, err := rulegraph.New(
		[]core.QuantityDecl{{Name: "d", Unit: units.Meter}, {Name: "area", Unit: units.MustParse("cm^2")}},
		[]core.Rule{{
			Name:   "area",
			Inputs: []string{"d"},
			Output: "area",
			Compute: core.ComputeFunc(func(in core.Inputs) (units.Measure, error) {
				return in.Measure("d").Pow(2), nil
			}),
		}},
	)
	require.NoError(t, err)

	rec, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "Square",
		Graph:       g,
		Inputs:      map[string]units.Measure{"d": units.Of(0.1, units.Meter)},
	})
	require.NoError(t, err)
	v, _ := rec.Value("area")
	assert.InDelta(t, 100, v, 1e-9)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConvergenceTolerance = 0
	cfg.MaxIterations = 0
	cfg.InitialGuessStrategy = "random"
	cfg.Criterion = "l2"
	cfg.Relaxation = 1.5

	_, err := New(cfg)
	require.Error(t, err)
	for _, want := range []string{"convergence_tolerance", "max_iterations", "initial_guess_strategy", "criterion", "relaxation"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = New(DefaultConfig())
	assert.NoError(t, err)
}

func TestStrategy_UnmarshalText(t *testing.T) {
	var s Strategy
	require.NoError(t, s.UnmarshalText([]byte("bound_midpoint")))
	assert.Equal(t, StrategyBoundMidpoint, s)
	assert.Error(t, s.UnmarshalText([]byte("newton")))

	var c Criterion
	require.NoError(t, c.UnmarshalText([]byte("absolute")))
	assert.Equal(t, CriterionAbsolute, c)
	assert.Error(t, c.UnmarshalText([]byte("l2")))
}

func TestResolve_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var calls atomic.Int64
	_, err := newResolver(t).Resolve(context.Background(), Request{
		UnitProcess: "StraightPipe",
		Graph:       straightPipe(t, &calls),
		Inputs: map[string]units.Measure{
			"flow":     units.Of(0.05, units.FlowRate),
			"diameter": units.Of(0.2, units.Meter),
		},
	})
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"Resolver.Group", "Resolver.Group", "Resolver.Resolve"}, names)
}

func TestResolve_NilGraph(t *testing.T) {
	_, err := newResolver(t).Resolve(context.Background(), Request{UnitProcess: "X"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrUnderspecified))
}
