package hclcatalog

import (
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// exprComputer evaluates an HCL arithmetic expression over the rule inputs.
// Values are in declared units and so is the result.
type exprComputer struct {
	expr hcl.Expression
}

// Compute implements core.Computer.
func (c *exprComputer) Compute(in core.Inputs) (units.Measure, error) {
	vars := make(map[string]cty.Value)
	for _, name := range in.Names() {
		v := in.Float(name)
		if math.IsNaN(v) {
			return units.Measure{}, fmt.Errorf("input %s is NaN", name)
		}
		vars[name] = cty.NumberFloatVal(v)
	}

	val, diags := c.expr.Value(&hcl.EvalContext{Variables: vars, Functions: functions})
	if diags.HasErrors() {
		return units.Measure{}, diags
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.Number {
		return units.Measure{}, fmt.Errorf("expression produced %s, want a number", val.Type().FriendlyName())
	}
	f, _ := val.AsBigFloat().Float64()
	return units.Measure{Value: f}, nil
}

// variables returns the root names an expression refers to, sorted and
// without duplicates.
func variables(expr hcl.Expression) []string {
	seen := make(map[string]bool)
	for _, t := range expr.Variables() {
		seen[t.RootName()] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// absent reports whether an optional expression attribute was left out.
func absent(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	if len(expr.Variables()) > 0 {
		return false
	}
	v, diags := expr.Value(nil)
	return !diags.HasErrors() && v.IsNull()
}
