// Package hclcatalog reads unit process definitions from HCL files.
//
// A file holds any number of unit_process blocks. Each one may reuse
// built-in fragments, declare its own quantities, and add rules written as
// arithmetic expressions or as calls into Starlark formula modules:
//
//	unit_process "RectangularChannel" {
//	  description = "Open channel of rectangular section"
//	  uses        = ["pipe_velocity"]
//
//	  quantity "width" {
//	    unit    = "m"
//	    default = 0.5
//	  }
//	  quantity "depth" {
//	    unit = "m"
//	    min  = 0.1
//	    max  = 3
//	  }
//
//	  rule "area" {
//	    output = "area"
//	    expr   = width * depth
//	  }
//	}
//
// A local quantity block replaces a fragment declaration of the same name,
// which is how a definition tightens or relaxes built-in bounds or picks
// another unit of the same dimension.
package hclcatalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/leapstack-labs/unitdesign/internal/formulas"
	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/internal/starlark"
	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Definition is one unit process read from a file.
type Definition struct {
	Name        string
	Description string
	Fragment    rulegraph.Fragment
	Defaults    map[string]float64 // declared units
	Path        string
}

// Graph builds the definition's rule graph.
func (d Definition) Graph() (*rulegraph.Graph, error) {
	g, err := d.Fragment.Graph()
	if err != nil {
		return nil, fmt.Errorf("%s: unit_process %q: %w", d.Path, d.Name, err)
	}
	return g, nil
}

// LoadDir reads every .hcl file in dir in file name order. A missing
// directory yields no definitions. Script rules resolve against lib, which
// may be nil when no formula modules are loaded.
func LoadDir(dir string, lib *starlark.Library) ([]Definition, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog directory: %w", err)
	}
	sort.Strings(files)

	var (
		out  []Definition
		errs []error
		seen = make(map[string]string)
	)
	for _, file := range files {
		defs, err := LoadFile(file, lib)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, d := range defs {
			if prev, dup := seen[d.Name]; dup {
				errs = append(errs, fmt.Errorf("%s: unit_process %q already defined in %s", d.Path, d.Name, prev))
				continue
			}
			seen[d.Name] = d.Path
			out = append(out, d)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// LoadFile reads the definitions in one file.
func LoadFile(path string, lib *starlark.Library) ([]Definition, error) {
	src, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the configured catalog directory
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(path, src, lib)
}

// Parse decodes HCL source. path is used for diagnostics only.
func Parse(path string, src []byte, lib *starlark.Library) ([]Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var cfg fileBlock
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	if err := validateBlocks(path, &cfg); err != nil {
		return nil, err
	}

	var (
		out  []Definition
		errs []error
		seen = make(map[string]bool)
	)
	for _, b := range cfg.UnitProcesses {
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("%s: unit_process %q defined twice", path, b.Name))
			continue
		}
		seen[b.Name] = true

		d, err := build(b, lib)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: unit_process %q: %w", path, b.Name, err))
			continue
		}
		d.Path = path
		out = append(out, d)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func build(b *unitProcessBlock, lib *starlark.Library) (Definition, error) {
	var errs []error

	frags := make([]rulegraph.Fragment, 0, len(b.Uses))
	for _, name := range b.Uses {
		f, ok := formulas.FragmentNamed(name)
		if !ok {
			errs = append(errs, fmt.Errorf("uses unknown fragment %q (have %s)", name, strings.Join(formulas.FragmentNames(), ", ")))
			continue
		}
		frags = append(frags, f)
	}
	if len(errs) > 0 {
		return Definition{}, errors.Join(errs...)
	}
	composed, err := rulegraph.Compose(b.Name, frags...)
	if err != nil {
		return Definition{}, err
	}

	defaults := make(map[string]float64)
	local := make(map[string]bool, len(b.Quantities))
	for _, q := range b.Quantities {
		if local[q.Name] {
			errs = append(errs, fmt.Errorf("quantity %q declared twice", q.Name))
			continue
		}
		local[q.Name] = true

		d, err := declaration(q)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if composed.Decls, err = replaceDecl(composed.Decls, d); err != nil {
			errs = append(errs, err)
			continue
		}
		if q.Default != nil {
			defaults[q.Name] = *q.Default
		}
	}

	for _, rb := range b.Rules {
		r, err := rule(rb, lib)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		composed.Rules = append(composed.Rules, r)
	}
	if len(errs) > 0 {
		return Definition{}, errors.Join(errs...)
	}

	if len(defaults) == 0 {
		defaults = nil
	}
	return Definition{
		Name:        b.Name,
		Description: b.Description,
		Fragment:    composed,
		Defaults:    defaults,
	}, nil
}

func declaration(q *quantityBlock) (core.QuantityDecl, error) {
	u, err := units.Parse(q.Unit)
	if err != nil {
		return core.QuantityDecl{}, fmt.Errorf("quantity %q: %w", q.Name, err)
	}
	b, err := bounds(q.Min, q.Max)
	if err != nil {
		return core.QuantityDecl{}, fmt.Errorf("quantity %q: %w", q.Name, err)
	}
	d := core.QuantityDecl{
		Name:        q.Name,
		Unit:        u,
		Bounds:      b,
		Description: q.Description,
	}
	if q.Guess != nil {
		d.Guess = core.LimitOf(*q.Guess)
	}
	return d, nil
}

// replaceDecl swaps in a local declaration. A fragment quantity may be
// redeclared in another unit of the same dimension only.
func replaceDecl(decls []core.QuantityDecl, d core.QuantityDecl) ([]core.QuantityDecl, error) {
	for i := range decls {
		if decls[i].Name != d.Name {
			continue
		}
		if !decls[i].Unit.Compatible(d.Unit) {
			return decls, fmt.Errorf("quantity %q: unit %s is not compatible with %s", d.Name, d.Unit, decls[i].Unit)
		}
		decls[i] = d
		return decls, nil
	}
	return append(decls, d), nil
}

func bounds(lo, hi *float64) (core.Bounds, error) {
	switch {
	case lo != nil && hi != nil:
		if *lo > *hi {
			return core.Bounds{}, fmt.Errorf("min %g is greater than max %g", *lo, *hi)
		}
		return core.Between(*lo, *hi), nil
	case lo != nil:
		return core.AtLeast(*lo), nil
	case hi != nil:
		return core.AtMost(*hi), nil
	default:
		return core.Unbounded(), nil
	}
}

func rule(rb *ruleBlock, lib *starlark.Library) (core.Rule, error) {
	b, err := bounds(rb.Min, rb.Max)
	if err != nil {
		return core.Rule{}, fmt.Errorf("rule %q: %w", rb.Name, err)
	}

	hasExpr := !absent(rb.Expr)
	switch {
	case hasExpr && rb.Script != "":
		return core.Rule{}, fmt.Errorf("rule %q: set expr or script, not both", rb.Name)
	case hasExpr:
		if len(rb.Inputs) > 0 {
			return core.Rule{}, fmt.Errorf("rule %q: inputs are inferred from expr and cannot be listed", rb.Name)
		}
		if _, quoted := rb.Expr.(*hclsyntax.TemplateExpr); quoted {
			return core.Rule{}, fmt.Errorf("rule %q: expr is a quoted string, write the arithmetic unquoted", rb.Name)
		}
		inputs := variables(rb.Expr)
		if len(inputs) == 0 {
			return core.Rule{}, fmt.Errorf("rule %q: expr refers to no quantities", rb.Name)
		}
		return core.Rule{
			Name:        rb.Name,
			Description: rb.Description,
			Inputs:      inputs,
			Output:      rb.Output,
			Compute:     &exprComputer{expr: rb.Expr},
			Bounds:      b,
		}, nil
	case rb.Script != "":
		inputs := rb.Inputs
		if len(inputs) == 0 {
			if inputs, err = lib.Params(rb.Script); err != nil {
				return core.Rule{}, fmt.Errorf("rule %q: %w", rb.Name, err)
			}
		}
		r, err := lib.Rule(rb.Name, rb.Script, inputs, rb.Output)
		if err != nil {
			return core.Rule{}, err
		}
		if rb.Description != "" {
			r.Description = rb.Description
		}
		r.Bounds = b
		return r, nil
	default:
		return core.Rule{}, fmt.Errorf("rule %q: one of expr or script is required", rb.Name)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
