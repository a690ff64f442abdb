package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/unitdesign/pkg/core"
)

func writeCatalogFile(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

const channelSource = `
unit_process "Channel" {
  description = "Rectangular channel"
  uses        = ["pipe_velocity"]

  quantity "width" {
    unit    = "m"
    default = 0.5
  }
  quantity "depth" {
    unit = "m"
  }

  rule "area" {
    output = "area"
    expr   = width * depth
  }
}
`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalogFile(t, dir, "channel.hcl", channelSource)

	c, err := Builtin()
	require.NoError(t, err)
	n, err := c.LoadDir(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 7, c.Len())

	e, err := c.Lookup("Channel")
	require.NoError(t, err)
	assert.Equal(t, path, e.Origin)
	assert.Equal(t, "Rectangular channel", e.Description)
	assert.Equal(t, map[string]float64{"width": 0.5}, e.Defaults)
	assert.ElementsMatch(t, []string{"depth", "flow", "width"}, e.Graph.FreeQuantities())
}

func TestLoadDir_Missing(t *testing.T) {
	c := New()
	n, err := c.LoadDir(filepath.Join(t.TempDir(), "absent"), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, c.Len())
}

func TestLoadDir_RegistersWhatItCan(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "a_channel.hcl", channelSource)
	writeCatalogFile(t, dir, "b_pipe.hcl", `
unit_process "StraightPipe" {
  uses = ["pipe_area"]
}

unit_process "Weir" {
  quantity "head" {
    unit    = "m"
    min     = 0
    default = -1
  }
}

unit_process "Orifice" {
  quantity "flow" {
    unit = "m^3/s"
  }
  rule "flow" {
    output = "flow"
    expr   = coefficient * 2
  }
}
`)

	c, err := Builtin()
	require.NoError(t, err)
	n, err := c.LoadDir(dir, nil)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, err, ErrDuplicateType)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Orifice")
	assert.Contains(t, err.Error(), "builtin")

	_, err = c.Lookup("Channel")
	assert.NoError(t, err)
	_, err = c.Lookup("Weir")
	assert.Error(t, err)
}

func TestLoadDir_Frozen(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "channel.hcl", channelSource)

	c := New()
	c.Freeze()
	_, err := c.LoadDir(dir, nil)
	assert.ErrorIs(t, err, ErrFrozen)
}
