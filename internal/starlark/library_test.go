package starlark

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

func testLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := LoadLibrary("testdata")
	require.NoError(t, err)
	return lib
}

func TestLoader_Load(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		want    []string
		wantErr string
	}{
		{
			name:  "missing directory",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") },
		},
		{
			name: "not a directory",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "formulas")
				require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
				return path
			},
			wantErr: "not a directory",
		},
		{
			name:  "testdata",
			setup: func(t *testing.T) string { return "testdata" },
			want:  []string{"floc", "hydraulics"},
		},
		{
			name: "syntax error",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.star"), []byte("def f(:\n"), 0o644))
				return dir
			},
			wantErr: "formulas/bad.star",
		},
		{
			name: "invalid namespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				require.NoError(t, os.WriteFile(filepath.Join(dir, "2pipes.star"), []byte("x = 1\n"), 0o644))
				return dir
			},
			wantErr: "must start with letter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modules, err := NewLoader(tt.setup(t)).Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, m := range modules {
				got = append(got, m.Namespace)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLibrary_PrivateNamesNotExported(t *testing.T) {
	lib := testLibrary(t)
	assert.Equal(t, []string{"floc", "hydraulics"}, lib.Namespaces())
	assert.Contains(t, lib.Functions(), "floc.g_coil")
	assert.NotContains(t, lib.Functions(), "floc._helper")

	_, err := lib.Lookup("floc._helper")
	assert.Error(t, err)
}

func TestLibrary_Lookup(t *testing.T) {
	lib := testLibrary(t)

	fn, err := lib.Lookup("floc.g_coil")
	require.NoError(t, err)
	assert.Equal(t, "g_coil", fn.Name())

	for _, ref := range []string{"g_coil", "floc.", "pumps.head", "floc.missing", "hydraulics.RATIO"} {
		_, err := lib.Lookup(ref)
		assert.Error(t, err, ref)
	}

	var empty *Library
	_, err = empty.Lookup("floc.g_coil")
	assert.Error(t, err)
}

func TestNewLibrary_DuplicateNamespace(t *testing.T) {
	a := &Module{Namespace: "floc", Path: "a/floc.star"}
	b := &Module{Namespace: "floc", Path: "b/floc.star"}
	_, err := NewLibrary(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b/floc.star")
}

func TestLibrary_Rule(t *testing.T) {
	lib := testLibrary(t)

	rule, err := lib.Rule("g_straight", "floc.g_straight", []string{"flow", "tube_diameter"}, "g_straight")
	require.NoError(t, err)
	assert.Equal(t, "floc.g_straight", rule.Description)

	m, err := rule.Compute.Compute(core.InputSet{
		"flow":          units.Of(1e-5, units.FlowRate),
		"tube_diameter": units.Of(0.0127, units.Meter),
	})
	require.NoError(t, err)
	assert.True(t, m.Unit.IsZero())
	assert.InDelta(t, 64*1e-5/(3*math.Pi*math.Pow(0.0127, 3)), m.Value, 1e-9)

	_, err = lib.Rule("g_straight", "floc.g_straight", []string{"flow", "diameter"}, "g_straight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parameter for diameter")

	// **kwargs accepts any input
	_, err = lib.Rule("total", "hydraulics.total", []string{"a", "b"}, "total")
	assert.NoError(t, err)
}

func TestComputer_UnitsAndBuiltins(t *testing.T) {
	lib := testLibrary(t)

	rule, err := lib.Rule("residence_time", "floc.residence_time_minutes", []string{"tube_length", "tube_diameter", "flow"}, "residence_time")
	require.NoError(t, err)
	m, err := rule.Compute.Compute(core.InputSet{
		"tube_length":   units.Of(30, units.Meter),
		"tube_diameter": units.Of(0.0127, units.Meter),
		"flow":          units.Of(1e-5, units.FlowRate),
	})
	require.NoError(t, err)
	assert.Equal(t, "min", m.Unit.Symbol())
	seconds, err := m.Float(units.Second)
	require.NoError(t, err)
	assert.InDelta(t, 30*math.Pi*0.0127*0.0127/4/1e-5, seconds, 1e-6)

	visc, err := lib.Rule("nu", "floc.viscosity", []string{"temperature"}, "nu")
	require.NoError(t, err)
	m, err = visc.Compute.Compute(core.InputSet{"temperature": units.Of(293.15, units.Kelvin)})
	require.NoError(t, err)
	assert.InDelta(t, 1.004e-6, m.Value, 0.01e-6)

	_, err = visc.Compute.Compute(core.InputSet{"temperature": units.Of(500, units.Kelvin)})
	assert.Error(t, err)
}

func TestComputer_Errors(t *testing.T) {
	lib := testLibrary(t)

	rule, err := lib.Rule("broken", "hydraulics.broken", []string{"x"}, "y")
	require.NoError(t, err)
	_, err = rule.Compute.Compute(core.InputSet{"x": units.Scalar(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hydraulics.broken")
}

func TestToMeasure(t *testing.T) {
	tests := []struct {
		name    string
		value   starlark.Value
		want    units.Measure
		wantErr bool
	}{
		{name: "float", value: starlark.Float(2.5), want: units.Measure{Value: 2.5}},
		{name: "int", value: starlark.MakeInt(3), want: units.Measure{Value: 3}},
		{name: "tuple", value: starlark.Tuple{starlark.Float(4), starlark.String("mm")}, want: units.Of(4, units.MustParse("mm"))},
		{name: "string", value: starlark.String("4"), wantErr: true},
		{name: "bad unit", value: starlark.Tuple{starlark.Float(4), starlark.String("furlong")}, wantErr: true},
		{name: "unit not string", value: starlark.Tuple{starlark.Float(4), starlark.Float(1)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMeasure(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputer_Concurrent(t *testing.T) {
	lib := testLibrary(t)
	rule, err := lib.Rule("head_loss", "hydraulics.head_loss", []string{"friction", "length", "diameter", "velocity"}, "head_loss")
	require.NoError(t, err)

	in := core.InputSet{
		"friction": units.Scalar(0.02),
		"length":   units.Of(100, units.Meter),
		"diameter": units.Of(0.2, units.Meter),
		"velocity": units.Of(1.5, units.Velocity),
	}
	want := 0.02 * 100 / 0.2 * 1.5 * 1.5 / (2 * 9.80665)

	var wg sync.WaitGroup
	results := make([]float64, 32)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := rule.Compute.Compute(in)
			if err == nil {
				results[i] = m.Value
			}
		}()
	}
	wg.Wait()
	for _, got := range results {
		assert.InDelta(t, want, got, 1e-12)
	}
	assert.LessOrEqual(t, lib.pool.Size(), 10)
}

func TestLibrary_Params(t *testing.T) {
	lib := testLibrary(t)

	params, err := lib.Params("floc.dean_number")
	require.NoError(t, err)
	assert.Equal(t, []string{"reynolds", "tube_diameter", "coil_radius"}, params)

	params, err = lib.Params("hydraulics.total")
	require.NoError(t, err)
	assert.Empty(t, params)
}
