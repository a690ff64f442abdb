// Package starlark loads formula modules written in Starlark and exposes
// their functions as rule computations.
//
// A formula is an ordinary Starlark function whose parameters are named
// after the quantities it reads:
//
//	def g_coil(g_straight, dean_number):
//	    return g_straight * math.sqrt(1 + 0.033 * math.pow(math.log(dean_number, 10), 4))
//
// It returns a number in the output quantity's declared unit, or a
// (value, "unit") tuple that is converted.
package starlark

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Library holds loaded formula modules by namespace.
type Library struct {
	modules map[string]*Module
	pool    *ThreadPool
}

// NewLibrary creates a library from loaded modules. Namespaces must be unique.
func NewLibrary(modules ...*Module) (*Library, error) {
	l := &Library{
		modules: make(map[string]*Module, len(modules)),
		pool:    NewThreadPool(0, DefaultMaxSteps),
	}
	for _, m := range modules {
		if prev, dup := l.modules[m.Namespace]; dup {
			return nil, fmt.Errorf("formula namespace %q defined by both %s and %s", m.Namespace, prev.Path, m.Path)
		}
		l.modules[m.Namespace] = m
	}
	return l, nil
}

// LoadLibrary loads every module in dir.
func LoadLibrary(dir string) (*Library, error) {
	modules, err := NewLoader(dir).Load()
	if err != nil {
		return nil, err
	}
	return NewLibrary(modules...)
}

// Namespaces returns the loaded namespaces in lexical order.
func (l *Library) Namespaces() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.modules))
	for ns := range l.modules {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Functions returns the qualified names of every exported function.
func (l *Library) Functions() []string {
	var out []string
	for _, ns := range l.Namespaces() {
		for name, v := range l.modules[ns].Exports {
			if _, ok := v.(*starlark.Function); ok {
				out = append(out, ns+"."+name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a qualified reference such as "floc.g_coil".
func (l *Library) Lookup(ref string) (*starlark.Function, error) {
	ns, name, ok := strings.Cut(ref, ".")
	if !ok || ns == "" || name == "" {
		return nil, fmt.Errorf("formula reference %q: want namespace.function", ref)
	}
	if l == nil {
		return nil, fmt.Errorf("formula reference %q: no formula modules loaded", ref)
	}
	m, ok := l.modules[ns]
	if !ok {
		return nil, fmt.Errorf("formula reference %q: unknown namespace %q (have %s)", ref, ns, strings.Join(l.Namespaces(), ", "))
	}
	v, ok := m.Exports[name]
	if !ok {
		return nil, fmt.Errorf("formula reference %q: %s has no export %q", ref, m.Path, name)
	}
	fn, ok := v.(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("formula reference %q: %s is a %s, not a function", ref, name, v.Type())
	}
	return fn, nil
}

// Params returns the named parameters of the function ref, in order,
// without *args or **kwargs.
func (l *Library) Params(ref string) ([]string, error) {
	fn, err := l.Lookup(ref)
	if err != nil {
		return nil, err
	}
	n := fn.NumParams()
	if fn.HasVarargs() {
		n--
	}
	if fn.HasKwargs() {
		n--
	}
	params := make([]string, n)
	for i := range params {
		params[i], _ = fn.Param(i)
	}
	return params, nil
}

// Rule builds a rule that calls the function ref with its inputs as keyword
// arguments. Every input must name a parameter of the function unless it
// accepts **kwargs.
func (l *Library) Rule(name, ref string, inputs []string, output string) (core.Rule, error) {
	fn, err := l.Lookup(ref)
	if err != nil {
		return core.Rule{}, err
	}
	if err := checkParams(fn, inputs); err != nil {
		return core.Rule{}, fmt.Errorf("rule %q: %w", name, err)
	}
	return core.Rule{
		Name:        name,
		Description: ref,
		Inputs:      append([]string(nil), inputs...),
		Output:      output,
		Compute:     &computer{ref: ref, fn: fn, pool: l.pool},
	}, nil
}

func checkParams(fn *starlark.Function, inputs []string) error {
	params := make(map[string]bool, fn.NumParams())
	for i := 0; i < fn.NumParams(); i++ {
		p, _ := fn.Param(i)
		params[p] = true
	}
	var missing []string
	for _, in := range inputs {
		if !params[in] && !fn.HasKwargs() {
			missing = append(missing, in)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("function %s has no parameter for %s", fn.Name(), strings.Join(missing, ", "))
	}
	return nil
}

type computer struct {
	ref  string
	fn   *starlark.Function
	pool *ThreadPool
}

// Compute implements core.Computer.
func (c *computer) Compute(in core.Inputs) (units.Measure, error) {
	names := in.Names()
	kwargs := make([]starlark.Tuple, len(names))
	for i, name := range names {
		kwargs[i] = starlark.Tuple{starlark.String(name), starlark.Float(in.Float(name))}
	}

	thread := c.pool.Get(c.ref)
	defer c.pool.Put(thread)

	v, err := starlark.Call(thread, c.fn, nil, kwargs)
	if err != nil {
		return units.Measure{}, fmt.Errorf("%s: %w", c.ref, err)
	}
	return ToMeasure(v)
}

// ToMeasure converts a formula result. Numbers carry no unit; a
// (value, "unit") tuple carries the named unit.
func ToMeasure(v starlark.Value) (units.Measure, error) {
	if f, ok := starlark.AsFloat(v); ok {
		return units.Measure{Value: f}, nil
	}
	t, ok := v.(starlark.Tuple)
	if !ok || t.Len() != 2 {
		return units.Measure{}, fmt.Errorf("formula returned %s, want a number or (value, unit)", v.Type())
	}
	f, ok := starlark.AsFloat(t[0])
	if !ok {
		return units.Measure{}, fmt.Errorf("formula returned %s as a value, want a number", t[0].Type())
	}
	sym, ok := starlark.AsString(t[1])
	if !ok {
		return units.Measure{}, fmt.Errorf("formula returned %s as a unit, want a string", t[1].Type())
	}
	u, err := units.Parse(sym)
	if err != nil {
		return units.Measure{}, err
	}
	return units.Of(f, u), nil
}
