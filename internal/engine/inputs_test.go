package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		text    string
		want    units.Measure
		wantErr bool
	}{
		{text: "0.05", want: units.Measure{Value: 0.05}},
		{text: " 1e-5 ", want: units.Measure{Value: 1e-5}},
		{text: "50 L/s", want: units.Of(50, units.MustParse("L/s"))},
		{text: "200mm", want: units.Of(200, units.MustParse("mm"))},
		{text: "fast", wantErr: true},
		{text: "3 furlong", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseValue(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"flow=50 L/s", "diameter = 0.2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]units.Measure{
		"flow":     units.Of(50, units.MustParse("L/s")),
		"diameter": {Value: 0.2},
	}, got)

	_, err = ParseAssignments([]string{"flow", "=2", "d=1", "d=2", "v=quick"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	for _, want := range []string{`"flow"`, `"=2"`, `"d" given twice`, "input v"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseGuesses(t *testing.T) {
	got, err := ParseGuesses([]string{"friction=0.03"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"friction": 0.03}, got)

	_, err = ParseGuesses([]string{"friction=0.03 1"})
	assert.Error(t, err)
	_, err = ParseGuesses([]string{"0.03"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestReadInputsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flow: 50 L/s\ndiameter: 0.2\ncount: 3\n"), 0o644))

	got, err := ReadInputsFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]units.Measure{
		"flow":     units.Of(50, units.MustParse("L/s")),
		"diameter": {Value: 0.2},
		"count":    {Value: 3},
	}, got)

	require.NoError(t, os.WriteFile(path, []byte("flow: [1, 2]\n"), 0o644))
	_, err = ReadInputsFile(path)
	assert.ErrorContains(t, err, "input flow")

	_, err = ReadInputsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
