package record

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

func sampleRecord() *Record {
	flow := core.Unresolved(core.QuantityDecl{Name: "flow", Unit: units.MustParse("L/s"), Bounds: core.AtLeast(0)}).
		WithValue(50, core.Input())
	diameter := core.Unresolved(core.QuantityDecl{Name: "diameter", Unit: units.Meter}).
		WithValue(0.2, core.Input())
	area := core.Unresolved(core.QuantityDecl{Name: "area", Unit: units.SquareMeter}).
		WithValue(0.031415926535897934, core.Derived("area"))
	velocity := core.Unresolved(core.QuantityDecl{Name: "velocity", Unit: units.Velocity, Bounds: core.Between(0.2, 2.0)}).
		WithValue(1.5915494309189535, core.Derived("velocity"))

	return New("StraightPipe",
		[]core.Quantity{velocity, flow, diameter, area},
		[]GroupReport{
			{Index: 0, Rules: []string{"area"}, Quantities: []string{"area"}, Iterations: 1, Converged: true},
			{Index: 1, Rules: []string{"velocity"}, Quantities: []string{"velocity"}, Iterations: 1, Converged: true},
		})
}

func TestNew_OrdersAndChecks(t *testing.T) {
	r := sampleRecord()

	assert.Equal(t, "StraightPipe", r.UnitProcess())
	assert.Equal(t, []string{"area", "diameter", "flow", "velocity"}, r.Names())
	assert.Equal(t, 4, r.Len())
	assert.True(t, r.ConstraintsSatisfied())

	constraints := r.Constraints()
	require.Len(t, constraints, 2)
	assert.Equal(t, "flow", constraints[0].Quantity)
	assert.Equal(t, "", constraints[0].Rule)
	assert.Equal(t, "velocity", constraints[1].Quantity)
	assert.Equal(t, "velocity", constraints[1].Rule)

	v, ok := r.Value("velocity")
	require.True(t, ok)
	assert.InDelta(t, 1.59, v, 0.01)
	_, ok = r.Quantity("missing")
	assert.False(t, ok)
}

func TestRecord_AccessorsReturnCopies(t *testing.T) {
	r := sampleRecord()

	qs := r.Quantities()
	qs[0].Value = -1
	groups := r.Convergence()
	groups[0].Rules[0] = "mutated"

	q, _ := r.Quantity("area")
	assert.NotEqual(t, -1.0, q.Value)
	assert.Equal(t, "area", r.Convergence()[0].Rules[0])
}

func TestRecord_UnsatisfiedConstraint(t *testing.T) {
	q := core.Unresolved(core.QuantityDecl{Name: "v", Unit: units.Velocity, Bounds: core.AtMost(2)}).
		WithValue(3, core.Derived("v"))
	r := New("X", []core.Quantity{q}, nil)
	assert.False(t, r.ConstraintsSatisfied())
}

func TestJSON_RoundTripIsByteIdentical(t *testing.T) {
	r := sampleRecord()

	first, err := json.Marshal(r)
	require.NoError(t, err)

	decoded, err := DecodeJSON(first)
	require.NoError(t, err)

	second, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, r.Digest(), decoded.Digest())

	// the unit text is kept as declared
	assert.Contains(t, string(first), `"unit":"L/s"`)
	assert.True(t, strings.HasPrefix(string(first), `{"constraints":[`))
	assert.Contains(t, string(first), `"source":{"kind":"derived","rule":"velocity"}`)
	assert.Contains(t, string(first), `"source":{"kind":"input"}`)
	assert.NotContains(t, string(first), "time")
}

func TestJSON_IndentedRoundTrip(t *testing.T) {
	first, err := json.MarshalIndent(sampleRecord(), "", "  ")
	require.NoError(t, err)

	decoded, err := DecodeJSON(first)
	require.NoError(t, err)

	second, err := json.MarshalIndent(decoded, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestYAML_RoundTripIsByteIdentical(t *testing.T) {
	first, err := sampleRecord().EncodeYAML()
	require.NoError(t, err)

	decoded, err := DecodeYAML(first)
	require.NoError(t, err)

	second, err := decoded.EncodeYAML()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Contains(t, string(first), "unit_process: StraightPipe")
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad version", `{"version":9,"unit_process":"X","quantities":{}}`},
		{"missing type", `{"version":1,"quantities":{}}`},
		{"bad unit", `{"version":1,"unit_process":"X","quantities":{"a":{"unit":"furlong","source":{"kind":"input"}}}}`},
		{"bad source", `{"version":1,"unit_process":"X","quantities":{"a":{"unit":"m","source":{"kind":"guess"}}}}`},
		{"unknown field", `{"version":1,"unit_process":"X","timestamp":"now"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
