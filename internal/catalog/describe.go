package catalog

import (
	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/pkg/core"
)

// Summary is a short description of an entry.
type Summary struct {
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Origin      string   `json:"origin" yaml:"origin"`
	Quantities  int      `json:"quantities" yaml:"quantities"`
	Rules       int      `json:"rules" yaml:"rules"`
	Inputs      []string `json:"inputs" yaml:"inputs"`
}

// Detail describes an entry's quantities and resolution groups.
type Detail struct {
	Type        string         `json:"type" yaml:"type"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Origin      string         `json:"origin" yaml:"origin"`
	Quantities  []QuantityInfo `json:"quantities" yaml:"quantities"`
	Groups      []GroupInfo    `json:"groups" yaml:"groups"`
}

// QuantityInfo describes one declared quantity. Bounds are the effective
// bounds, values in the declared unit.
type QuantityInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Unit        string   `json:"unit" yaml:"unit"`
	Lower       *float64 `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper       *float64 `json:"upper,omitempty" yaml:"upper,omitempty"`
	Default     *float64 `json:"default,omitempty" yaml:"default,omitempty"`
	DerivedBy   string   `json:"derived_by,omitempty" yaml:"derived_by,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// GroupInfo describes one resolution group.
type GroupInfo struct {
	Index  int        `json:"index" yaml:"index"`
	Cyclic bool       `json:"cyclic" yaml:"cyclic"`
	Rules  []RuleInfo `json:"rules" yaml:"rules"`
}

// RuleInfo describes one rule.
type RuleInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Output      string   `json:"output" yaml:"output"`
	Inputs      []string `json:"inputs" yaml:"inputs"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Summarize returns the summary of e.
func (e Entry) Summarize() Summary {
	inputs := e.Graph.FreeQuantities()
	if inputs == nil {
		inputs = []string{}
	}
	return Summary{
		Type:        e.TypeName,
		Description: e.Description,
		Origin:      e.Origin,
		Quantities:  len(e.Graph.Declarations()),
		Rules:       len(e.Graph.Rules()),
		Inputs:      inputs,
	}
}

// Describe returns the full description of e.
func (e Entry) Describe() Detail {
	d := Detail{
		Type:        e.TypeName,
		Description: e.Description,
		Origin:      e.Origin,
		Groups:      Groups(e.Graph),
	}
	for _, decl := range e.Graph.Declarations() {
		q := QuantityInfo{
			Name:        decl.Name,
			Unit:        decl.Unit.Symbol(),
			Description: decl.Description,
		}
		b := e.Graph.Bounds(decl.Name)
		q.Lower, q.Upper = limitPtr(b.Lower), limitPtr(b.Upper)
		if v, ok := e.Defaults[decl.Name]; ok {
			q.Default = &v
		}
		if r, ok := e.Graph.Producer(decl.Name); ok {
			q.DerivedBy = r.Name
		}
		d.Quantities = append(d.Quantities, q)
	}
	return d
}

// Groups describes the resolution groups of g in evaluation order.
func Groups(g *rulegraph.Graph) []GroupInfo {
	groups := g.Groups()
	out := make([]GroupInfo, 0, len(groups))
	for _, grp := range groups {
		info := GroupInfo{Index: grp.Index, Cyclic: grp.Cyclic}
		for _, r := range grp.Rules {
			inputs := append([]string{}, r.Inputs...)
			info.Rules = append(info.Rules, RuleInfo{
				Name:        r.Name,
				Output:      r.Output,
				Inputs:      inputs,
				Description: r.Description,
			})
		}
		out = append(out, info)
	}
	return out
}

func limitPtr(l core.Limit) *float64 {
	if !l.Valid {
		return nil
	}
	v := l.Value
	return &v
}
