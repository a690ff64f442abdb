// Package rulegraph builds validated rule graphs and partitions them into
// ordered resolution groups.
//
// A rule graph is immutable once built. Declarations and rules are copied on
// the way in and on the way out, so two unit processes built from the same
// fragment never share mutable state.
package rulegraph

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/unitdesign/internal/dag"
	"github.com/leapstack-labs/unitdesign/pkg/core"
)

// Group is a resolution group: one acyclic rule, or a maximal set of
// mutually dependent rules resolved together by fixed-point iteration.
type Group struct {
	Index  int
	Rules  []core.Rule // sorted by output name
	Cyclic bool
}

// Outputs returns the quantities produced by the group, sorted.
func (g Group) Outputs() []string {
	out := make([]string, len(g.Rules))
	for i, r := range g.Rules {
		out[i] = r.Output
	}
	return out
}

// RuleNames returns the names of the group's rules in output order.
func (g Group) RuleNames() []string {
	out := make([]string, len(g.Rules))
	for i, r := range g.Rules {
		out[i] = r.Name
	}
	return out
}

func (g Group) clone() Group {
	rules := make([]core.Rule, len(g.Rules))
	for i, r := range g.Rules {
		rules[i] = r.Clone()
	}
	g.Rules = rules
	return g
}

// Graph is a validated rule graph.
type Graph struct {
	decls    map[string]core.QuantityDecl
	names    []string             // declared quantity names, sorted
	rules    map[string]core.Rule // keyed by output
	ruleOut  map[string]string    // rule name -> output
	deps     *dag.Graph           // rule nodes keyed by output
	flow     *dag.Graph           // quantity nodes, input -> output
	groups   []Group
	cyclicOf map[string]bool // rule name -> member of a cyclic group
}

// New validates decls and rules and builds the graph. All configuration
// problems are reported together.
func New(decls []core.QuantityDecl, rules []core.Rule) (*Graph, error) {
	g := &Graph{
		decls:    make(map[string]core.QuantityDecl, len(decls)),
		rules:    make(map[string]core.Rule, len(rules)),
		ruleOut:  make(map[string]string, len(rules)),
		deps:     dag.NewGraph(),
		flow:     dag.NewGraph(),
		cyclicOf: make(map[string]bool),
	}

	var errs []error
	for _, d := range decls {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Errorf("quantity declaration with empty name"))
			continue
		case d.Unit.IsZero():
			errs = append(errs, fmt.Errorf("quantity %s: missing unit", d.Name))
			continue
		case d.Bounds.Empty():
			errs = append(errs, fmt.Errorf("quantity %s: empty bounds %s", d.Name, d.Bounds))
			continue
		}
		if _, dup := g.decls[d.Name]; dup {
			errs = append(errs, fmt.Errorf("quantity %s declared more than once", d.Name))
			continue
		}
		g.decls[d.Name] = d
		g.names = append(g.names, d.Name)
		g.flow.AddNode(d.Name, nil)
	}
	sort.Strings(g.names)

	claimants := make(map[string][]string)
	for _, r := range rules {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("rule with empty name (output %q)", r.Output))
			continue
		}
		if _, dup := g.ruleOut[r.Name]; dup {
			errs = append(errs, fmt.Errorf("rule %q defined more than once", r.Name))
			continue
		}
		g.ruleOut[r.Name] = r.Output
		claimants[r.Output] = append(claimants[r.Output], r.Name)

		if r.Compute == nil {
			errs = append(errs, fmt.Errorf("rule %q has no computation", r.Name))
		}
		decl, ok := g.decls[r.Output]
		if !ok {
			errs = append(errs, &core.UnknownQuantityError{Name: r.Output, Context: fmt.Sprintf("output of rule %q", r.Name)})
		} else if decl.Bounds.Intersect(r.Bounds).Empty() {
			errs = append(errs, fmt.Errorf("rule %q: bounds %s exclude every value allowed for %s", r.Name, r.Bounds, r.Output))
		}
		for _, in := range r.Inputs {
			if _, ok := g.decls[in]; !ok {
				errs = append(errs, &core.UnknownQuantityError{Name: in, Context: fmt.Sprintf("input of rule %q", r.Name)})
			}
		}
		if len(claimants[r.Output]) == 1 {
			g.rules[r.Output] = r.Clone()
		}
	}

	outputs := make([]string, 0, len(claimants))
	for out := range claimants {
		outputs = append(outputs, out)
	}
	sort.Strings(outputs)
	for _, out := range outputs {
		if names := claimants[out]; len(names) > 1 {
			sort.Strings(names)
			errs = append(errs, &core.DuplicateOutputError{Output: out, Rules: names})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g.link()
	return g, nil
}

func (g *Graph) link() {
	for out := range g.rules {
		g.deps.AddNode(out, nil)
	}
	for out, r := range g.rules {
		for _, in := range r.Inputs {
			_ = g.flow.AddEdge(in, out)
			if _, produced := g.rules[in]; produced {
				_ = g.deps.AddEdge(in, out)
			}
		}
	}

	c := g.deps.Condense()
	for i, key := range c.OrderedComponents() {
		members := c.Members(key)
		group := Group{Index: i, Cyclic: g.deps.IsCyclic(members)}
		for _, out := range members {
			r := g.rules[out]
			group.Rules = append(group.Rules, r)
			if group.Cyclic {
				g.cyclicOf[r.Name] = true
			}
		}
		g.groups = append(g.groups, group)
	}
}

// Groups returns the resolution groups in evaluation order.
func (g *Graph) Groups() []Group {
	out := make([]Group, len(g.groups))
	for i, grp := range g.groups {
		out[i] = grp.clone()
	}
	return out
}

// Declarations returns every declared quantity, sorted by name.
func (g *Graph) Declarations() []core.QuantityDecl {
	out := make([]core.QuantityDecl, len(g.names))
	for i, name := range g.names {
		out[i] = g.decls[name]
	}
	return out
}

// Declaration returns the declaration of name.
func (g *Graph) Declaration(name string) (core.QuantityDecl, bool) {
	d, ok := g.decls[name]
	return d, ok
}

// Rules returns every rule, sorted by name.
func (g *Graph) Rules() []core.Rule {
	out := make([]core.Rule, 0, len(g.rules))
	for _, r := range g.rules {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Producer returns the rule that produces q.
func (g *Graph) Producer(q string) (core.Rule, bool) {
	r, ok := g.rules[q]
	if !ok {
		return core.Rule{}, false
	}
	return r.Clone(), true
}

// Derivable reports whether some rule produces q.
func (g *Graph) Derivable(q string) bool {
	_, ok := g.rules[q]
	return ok
}

// Consumers returns the names of the rules that read q, sorted.
func (g *Graph) Consumers(q string) []string {
	var out []string
	for _, r := range g.rules {
		if r.Consumes(q) {
			out = append(out, r.Name)
		}
	}
	sort.Strings(out)
	return out
}

// FreeQuantities returns the quantities no rule produces, sorted. They must
// come from the caller or from defaults.
func (g *Graph) FreeQuantities() []string {
	var out []string
	for _, name := range g.names {
		if !g.Derivable(name) {
			out = append(out, name)
		}
	}
	return out
}

// IsCyclic reports whether the named rule belongs to a cyclic group.
func (g *Graph) IsCyclic(rule string) bool {
	return g.cyclicOf[rule]
}

// Bounds returns the effective bounds of q: its declared bounds intersected
// with the bounds of the rule producing it.
func (g *Graph) Bounds(q string) core.Bounds {
	b := g.decls[q].Bounds
	if r, ok := g.rules[q]; ok {
		b = b.Intersect(r.Bounds)
	}
	return b
}

// Affected returns the quantities whose value depends on q, sorted.
func (g *Graph) Affected(q string) []string {
	down := g.flow.Downstream(q)
	if g.flow.HasSelfLoop(q) {
		return down
	}
	return slices.DeleteFunc(down, func(name string) bool { return name == q })
}

// Upstream returns the quantities q depends on, sorted.
func (g *Graph) Upstream(q string) []string {
	return g.flow.Upstream(q)
}
