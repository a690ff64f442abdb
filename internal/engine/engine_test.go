package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/unitdesign/internal/resolver"
	"github.com/leapstack-labs/unitdesign/internal/testutil"
	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

const mixerFormulas = `
def power(g, volume, mu):
    return g * g * volume * mu
`

const mixerCatalog = `
unit_process "RapidMixer" {
  description = "Mechanical rapid mix tank"

  quantity "g" {
    unit    = "1/s"
    min     = 100
    max     = 1000
    default = 700
  }
  quantity "volume" {
    unit = "m^3"
    min  = 0
  }
  quantity "mu" {
    unit    = "Pa*s"
    default = 0.001
  }
  quantity "power" {
    unit = "W"
  }

  rule "power" {
    output = "power"
    script = "mixer.power"
  }
}
`

type project struct {
	catalogDir  string
	formulasDir string
}

func setupProject(t *testing.T) project {
	t.Helper()
	root := t.TempDir()
	p := project{
		catalogDir:  filepath.Join(root, "catalog"),
		formulasDir: filepath.Join(root, "formulas"),
	}
	require.NoError(t, os.MkdirAll(p.catalogDir, 0o755))
	require.NoError(t, os.MkdirAll(p.formulasDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.formulasDir, "mixer.star"), []byte(mixerFormulas), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(p.catalogDir, "mixer.hcl"), []byte(mixerCatalog), 0o644))
	return p
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	p := setupProject(t)
	eng, err := New(Config{
		CatalogDir:  p.catalogDir,
		FormulasDir: p.formulasDir,
		Resolver:    resolver.DefaultConfig(),
		Logger:      testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	return eng
}

func TestNew(t *testing.T) {
	eng := newTestEngine(t)

	assert.True(t, eng.Catalog().Frozen())
	assert.Contains(t, eng.Catalog().Names(), "RapidMixer")
	assert.Contains(t, eng.Catalog().Names(), "StraightPipe")
	assert.Equal(t, []string{"mixer.power"}, eng.Formulas())
}

func TestNew_BuiltinOnly(t *testing.T) {
	eng, err := New(Config{Resolver: resolver.DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, 6, eng.Catalog().Len())
	assert.Empty(t, eng.Formulas())
}

func TestNew_Errors(t *testing.T) {
	t.Run("invalid resolver options", func(t *testing.T) {
		cfg := resolver.DefaultConfig()
		cfg.MaxIterations = 0
		_, err := New(Config{Resolver: cfg})
		assert.ErrorContains(t, err, "max_iterations")
	})

	t.Run("script rule without formulas", func(t *testing.T) {
		p := setupProject(t)
		_, err := New(Config{CatalogDir: p.catalogDir, Resolver: resolver.DefaultConfig()})
		assert.ErrorContains(t, err, "failed to load catalog")
	})

	t.Run("broken formula module", func(t *testing.T) {
		p := setupProject(t)
		require.NoError(t, os.WriteFile(filepath.Join(p.formulasDir, "bad.star"), []byte("def (:\n"), 0o644))
		_, err := New(Config{FormulasDir: p.formulasDir, Resolver: resolver.DefaultConfig()})
		assert.ErrorContains(t, err, "failed to load formulas")
	})
}

func TestResolve(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	rec, err := eng.Resolve(ctx, "RapidMixer", map[string]units.Measure{
		"volume": units.Of(2000, units.MustParse("L")),
	})
	require.NoError(t, err)
	power, _ := rec.Value("power")
	assert.InDelta(t, 700*700*2*0.001, power, 1e-9)
	g, _ := rec.Quantity("g")
	assert.Equal(t, core.SourceDefault, g.Source.Kind)

	rec, err = eng.Resolve(ctx, "StraightPipe", map[string]units.Measure{
		"flow":     units.Of(0.05, units.FlowRate),
		"diameter": units.Of(200, units.MustParse("mm")),
	})
	require.NoError(t, err)
	assert.True(t, rec.ConstraintsSatisfied())
}

func TestResolve_Errors(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		typ    string
		inputs map[string]units.Measure
		want   error
	}{
		{name: "unknown type", typ: "Clarifier", want: core.ErrUnknownUnitProcessType},
		{name: "unknown input", typ: "RapidMixer", inputs: map[string]units.Measure{"volume": {Value: 2}, "colour": {Value: 1}}, want: core.ErrUnknownQuantity},
		{name: "missing input", typ: "RapidMixer", want: core.ErrUnderspecified},
		{name: "out of bounds", typ: "RapidMixer", inputs: map[string]units.Measure{"volume": {Value: 2}, "g": {Value: 50}}, want: core.ErrInvalidInput},
		{name: "wrong unit", typ: "RapidMixer", inputs: map[string]units.Measure{"volume": units.Of(2, units.Meter)}, want: core.ErrUnitMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := eng.Resolve(ctx, tt.typ, tt.inputs)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var unknown *core.UnknownTypeError
	_, err := eng.Resolve(ctx, "Clarifier", nil)
	require.True(t, errors.As(err, &unknown))
	assert.Contains(t, unknown.Available, "RapidMixer")
}

func TestResolveBatch(t *testing.T) {
	eng := newTestEngine(t)

	reqs := []Request{
		{Type: "RapidMixer", Inputs: map[string]units.Measure{"volume": {Value: 1}}},
		{Type: "Clarifier"},
		{Type: "RapidMixer", Inputs: map[string]units.Measure{"volume": {Value: 3}}},
	}
	results := eng.ResolveBatch(context.Background(), reqs, 2)
	require.Len(t, results, 3)

	p1, _ := results[0].Record.Value("power")
	p3, _ := results[2].Record.Value("power")
	assert.InDelta(t, 490, p1, 1e-9)
	assert.InDelta(t, 1470, p3, 1e-9)
	assert.Nil(t, results[1].Record)
	assert.ErrorIs(t, results[1].Err, core.ErrUnknownUnitProcessType)
	assert.Equal(t, "Clarifier", results[1].Request.Type)

	assert.Empty(t, eng.ResolveBatch(context.Background(), nil, 0))
}

func TestResolveBatch_CancelledContext(t *testing.T) {
	eng := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reqs := make([]Request, 5)
	for i := range reqs {
		reqs[i] = Request{Type: "RapidMixer", Inputs: map[string]units.Measure{"volume": {Value: 1}}}
	}
	results := eng.ResolveBatch(ctx, reqs, 2)
	require.Len(t, results, 5)
	for _, res := range results {
		assert.Nil(t, res.Record)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Equal(t, "RapidMixer", res.Request.Type)
	}
}
