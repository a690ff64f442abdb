// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/unitdesign/internal/cli/output"
)

// MixerFormulas is the Starlark module written by SetupTestProject.
const MixerFormulas = `
def power(g, volume, mu):
    return g * g * volume * mu
`

// MixerCatalog is the catalog file written by SetupTestProject. Its script
// rule needs MixerFormulas.
const MixerCatalog = `
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

// Project is a temporary project directory.
type Project struct {
	Root        string
	CatalogDir  string
	FormulasDir string
}

// SetupTestProject creates a temporary project holding the RapidMixer
// catalog entry and its formula module.
func SetupTestProject(t *testing.T) Project {
	t.Helper()

	root := t.TempDir()
	p := Project{
		Root:        root,
		CatalogDir:  filepath.Join(root, "catalog"),
		FormulasDir: filepath.Join(root, "formulas"),
	}

	for _, dir := range []string{p.CatalogDir, p.FormulasDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}
	p.WriteFile(t, filepath.Join("formulas", "mixer.star"), MixerFormulas)
	p.WriteFile(t, filepath.Join("catalog", "mixer.hcl"), MixerCatalog)
	return p
}

// WriteFile writes content to a path relative to the project root.
func (p Project) WriteFile(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(p.Root, rel)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
	return path
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}

	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
