package rulegraph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/unitdesign/pkg/core"
)

// Fragment is a reusable set of declarations and rules, such as a shared
// pipe-sizing sub-graph embedded in several unit processes.
type Fragment struct {
	Name  string
	Decls []core.QuantityDecl
	Rules []core.Rule
}

// Clone returns a deep copy of f.
func (f Fragment) Clone() Fragment {
	out := Fragment{Name: f.Name, Decls: slices.Clone(f.Decls)}
	out.Rules = make([]core.Rule, len(f.Rules))
	for i, r := range f.Rules {
		out.Rules[i] = r.Clone()
	}
	return out
}

// Graph builds a rule graph from the fragment.
func (f Fragment) Graph() (*Graph, error) {
	return New(f.Decls, f.Rules)
}

// Compose merges fragments into one by value. A quantity or rule that
// appears in several fragments must be declared identically each time.
func Compose(name string, fragments ...Fragment) (Fragment, error) {
	out := Fragment{Name: name}
	declAt := make(map[string]int)
	ruleAt := make(map[string]int)
	var errs []error

	for _, f := range fragments {
		for _, d := range f.Decls {
			i, seen := declAt[d.Name]
			if !seen {
				declAt[d.Name] = len(out.Decls)
				out.Decls = append(out.Decls, d)
				continue
			}
			if !sameDecl(out.Decls[i], d) {
				errs = append(errs, fmt.Errorf("fragment %s: quantity %s conflicts with an earlier declaration", f.Name, d.Name))
			}
		}
		for _, r := range f.Rules {
			i, seen := ruleAt[r.Name]
			if !seen {
				ruleAt[r.Name] = len(out.Rules)
				out.Rules = append(out.Rules, r.Clone())
				continue
			}
			prev := out.Rules[i]
			if prev.Output != r.Output || !slices.Equal(prev.Inputs, r.Inputs) || prev.Bounds != r.Bounds {
				errs = append(errs, fmt.Errorf("fragment %s: rule %q conflicts with an earlier definition", f.Name, r.Name))
			}
		}
	}
	if len(errs) > 0 {
		return Fragment{}, errors.Join(errs...)
	}
	return out, nil
}

func sameDecl(a, b core.QuantityDecl) bool {
	return a.Name == b.Name && a.Unit == b.Unit && a.Bounds == b.Bounds && a.Guess == b.Guess
}

// Override returns a copy of f with the bounds of the named quantities replaced.
func (f Fragment) Override(bounds map[string]core.Bounds) Fragment {
	out := f.Clone()
	for i, d := range out.Decls {
		if b, ok := bounds[d.Name]; ok {
			out.Decls[i].Bounds = b
		}
	}
	return out
}
