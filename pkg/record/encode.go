package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Document field names are part of the format and must not change between
// versions. Fields are declared in lexical order so every object in the
// encoded document is key-ordered.

type document struct {
	Constraints          []constraintDoc        `json:"constraints" yaml:"constraints"`
	ConstraintsSatisfied bool                   `json:"constraints_satisfied" yaml:"constraints_satisfied"`
	Convergence          []groupDoc             `json:"convergence" yaml:"convergence"`
	Quantities           map[string]quantityDoc `json:"quantities" yaml:"quantities"`
	UnitProcess          string                 `json:"unit_process" yaml:"unit_process"`
	Version              int                    `json:"version" yaml:"version"`
}

type boundsDoc struct {
	Lower *float64 `json:"lower" yaml:"lower"`
	Upper *float64 `json:"upper" yaml:"upper"`
}

type sourceDoc struct {
	Kind string `json:"kind" yaml:"kind"`
	Rule string `json:"rule,omitempty" yaml:"rule,omitempty"`
}

type quantityDoc struct {
	Bounds    boundsDoc `json:"bounds" yaml:"bounds"`
	Iteration int       `json:"iteration" yaml:"iteration"`
	Source    sourceDoc `json:"source" yaml:"source"`
	Unit      string    `json:"unit" yaml:"unit"`
	Value     float64   `json:"value" yaml:"value"`
}

type constraintDoc struct {
	Bounds    boundsDoc `json:"bounds" yaml:"bounds"`
	Quantity  string    `json:"quantity" yaml:"quantity"`
	Rule      string    `json:"rule,omitempty" yaml:"rule,omitempty"`
	Satisfied bool      `json:"satisfied" yaml:"satisfied"`
	Value     float64   `json:"value" yaml:"value"`
}

type groupDoc struct {
	Converged  bool     `json:"converged" yaml:"converged"`
	Cyclic     bool     `json:"cyclic" yaml:"cyclic"`
	Index      int      `json:"index" yaml:"index"`
	Iterations int      `json:"iterations" yaml:"iterations"`
	Quantities []string `json:"quantities" yaml:"quantities"`
	Residual   float64  `json:"residual" yaml:"residual"`
	Rules      []string `json:"rules" yaml:"rules"`
}

func encodeBounds(b core.Bounds) boundsDoc {
	var d boundsDoc
	if b.Lower.Valid {
		v := b.Lower.Value
		d.Lower = &v
	}
	if b.Upper.Valid {
		v := b.Upper.Value
		d.Upper = &v
	}
	return d
}

func (d boundsDoc) decode() core.Bounds {
	var b core.Bounds
	if d.Lower != nil {
		b.Lower = core.LimitOf(*d.Lower)
	}
	if d.Upper != nil {
		b.Upper = core.LimitOf(*d.Upper)
	}
	return b
}

func (r *Record) document() document {
	doc := document{
		Constraints:          make([]constraintDoc, 0, len(r.constraints)),
		ConstraintsSatisfied: r.satisfied,
		Convergence:          make([]groupDoc, 0, len(r.groups)),
		Quantities:           make(map[string]quantityDoc, len(r.quantities)),
		UnitProcess:          r.unitProcess,
		Version:              Version,
	}
	for _, q := range r.quantities {
		doc.Quantities[q.Name] = quantityDoc{
			Bounds:    encodeBounds(q.Bounds),
			Iteration: q.Iteration,
			Source:    sourceDoc{Kind: string(q.Source.Kind), Rule: q.Source.Rule},
			Unit:      q.Unit.Symbol(),
			Value:     q.Value,
		}
	}
	for _, c := range r.constraints {
		doc.Constraints = append(doc.Constraints, constraintDoc{
			Bounds:    encodeBounds(c.Bounds),
			Quantity:  c.Quantity,
			Rule:      c.Rule,
			Satisfied: c.Satisfied,
			Value:     c.Value,
		})
	}
	for _, g := range r.groups {
		doc.Convergence = append(doc.Convergence, groupDoc{
			Converged:  g.Converged,
			Cyclic:     g.Cyclic,
			Index:      g.Index,
			Iterations: g.Iterations,
			Quantities: nonNil(g.Quantities),
			Residual:   g.Residual,
			Rules:      nonNil(g.Rules),
		})
	}
	return doc
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func fromDocument(doc document) (*Record, error) {
	if doc.Version != Version {
		return nil, fmt.Errorf("unsupported record version %d", doc.Version)
	}
	if doc.UnitProcess == "" {
		return nil, fmt.Errorf("record has no unit_process")
	}

	r := &Record{unitProcess: doc.UnitProcess, satisfied: doc.ConstraintsSatisfied}

	names := make([]string, 0, len(doc.Quantities))
	for name := range doc.Quantities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		qd := doc.Quantities[name]
		u, err := units.Parse(qd.Unit)
		if err != nil {
			return nil, fmt.Errorf("quantity %s: %w", name, err)
		}
		src := core.Source{Kind: core.SourceKind(qd.Source.Kind), Rule: qd.Source.Rule}
		switch src.Kind {
		case core.SourceInput, core.SourceDefault, core.SourceDerived:
		default:
			return nil, fmt.Errorf("quantity %s: unknown source kind %q", name, qd.Source.Kind)
		}
		r.quantities = append(r.quantities, core.Quantity{
			Name:      name,
			Value:     qd.Value,
			Unit:      u,
			Bounds:    qd.Bounds.decode(),
			Source:    src,
			Iteration: qd.Iteration,
			Resolved:  true,
		})
	}

	for _, c := range doc.Constraints {
		r.constraints = append(r.constraints, Constraint{
			Quantity:  c.Quantity,
			Rule:      c.Rule,
			Value:     c.Value,
			Bounds:    c.Bounds.decode(),
			Satisfied: c.Satisfied,
		})
	}
	for _, g := range doc.Convergence {
		r.groups = append(r.groups, GroupReport{
			Index:      g.Index,
			Rules:      g.Rules,
			Quantities: g.Quantities,
			Cyclic:     g.Cyclic,
			Iterations: g.Iterations,
			Residual:   g.Residual,
			Converged:  g.Converged,
		})
	}
	return r, nil
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.document())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	decoded, err := fromDocument(doc)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r *Record) MarshalYAML() (any, error) {
	return r.document(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Record) UnmarshalYAML(node *yaml.Node) error {
	var doc document
	if err := node.Decode(&doc); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	decoded, err := fromDocument(doc)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

// DecodeJSON decodes a record previously written by MarshalJSON.
func DecodeJSON(data []byte) (*Record, error) {
	r := &Record{}
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return r, nil
}

// DecodeYAML decodes a record previously written with yaml.Marshal.
func DecodeYAML(data []byte) (*Record, error) {
	r := &Record{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

// EncodeYAML returns the YAML form of the record.
func (r *Record) EncodeYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns the hex sha256 of the canonical JSON encoding.
func (r *Record) Digest() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
