package hclcatalog

import (
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions are available to rule expressions.
var functions = map[string]function.Function{
	"abs":   stdlib.AbsoluteFunc,
	"ceil":  stdlib.CeilFunc,
	"floor": stdlib.FloorFunc,
	"log":   stdlib.LogFunc,
	"max":   stdlib.MaxFunc,
	"min":   stdlib.MinFunc,
	"pow":   stdlib.PowFunc,
	"sqrt":  unaryFunc("sqrt", math.Sqrt, func(x float64) bool { return x >= 0 }),
	"log10": unaryFunc("log10", math.Log10, func(x float64) bool { return x > 0 }),
	"exp":   unaryFunc("exp", math.Exp, nil),
	"pi": function.New(&function.Spec{
		Description: "The ratio of a circle's circumference to its diameter.",
		Params:      []function.Parameter{},
		Type:        function.StaticReturnType(cty.Number),
		Impl: func(_ []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.NumberFloatVal(math.Pi), nil
		},
	}),
}

// FunctionNames lists the functions rule expressions may call.
func FunctionNames() []string {
	return sortedKeys(functions)
}

func unaryFunc(name string, fn func(float64) float64, domain func(float64) bool) function.Function {
	return function.New(&function.Spec{
		Description: fmt.Sprintf("Returns %s(num).", name),
		Params: []function.Parameter{{
			Name: "num",
			Type: cty.Number,
		}},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			x, _ := args[0].AsBigFloat().Float64()
			if domain != nil && !domain(x) {
				return cty.UnknownVal(cty.Number), function.NewArgErrorf(0, "%s is undefined for %g", name, x)
			}
			y := fn(x)
			if math.IsInf(y, 0) || math.IsNaN(y) {
				return cty.UnknownVal(cty.Number), function.NewArgErrorf(0, "%s(%g) is not finite", name, x)
			}
			return cty.NumberFloatVal(y), nil
		},
	})
}
