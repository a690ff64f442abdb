// Package catalog maps unit process type names to their rule graphs and
// defaults.
//
// A catalog is append-only: entries are validated when registered and never
// change afterwards. Once frozen it only serves lookups, so a frozen catalog
// can be shared freely between goroutines and swapped wholesale on reload.
package catalog

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/leapstack-labs/unitdesign/internal/formulas"
	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/pkg/core"
)

// Registration errors.
var (
	ErrDuplicateType = errors.New("unit process type already registered")
	ErrFrozen        = errors.New("catalog is frozen")
)

// Entry is one registered unit process type.
type Entry struct {
	TypeName    string
	Description string
	Graph       *rulegraph.Graph
	// Defaults apply to free quantities the caller omits, in declared units.
	Defaults map[string]float64
	// Origin records where the entry was defined: "builtin" or a file path.
	Origin string
}

func (e Entry) clone() Entry {
	e.Defaults = maps.Clone(e.Defaults)
	return e
}

// Catalog is a registry of unit process types.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
	frozen  bool
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Builtin creates a catalog holding the built-in formula library. The
// catalog is not frozen so more definitions can be loaded into it.
func Builtin() (*Catalog, error) {
	c := New()
	if err := c.RegisterBuiltin(); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterBuiltin registers every built-in unit process.
func (c *Catalog) RegisterBuiltin() error {
	ups, err := formulas.UnitProcesses()
	if err != nil {
		return err
	}
	for _, up := range ups {
		g, err := up.Fragment.Graph()
		if err != nil {
			return fmt.Errorf("builtin %s: %w", up.Name, err)
		}
		if err := c.Register(Entry{
			TypeName:    up.Name,
			Description: up.Description,
			Graph:       g,
			Defaults:    up.Defaults,
			Origin:      "builtin",
		}); err != nil {
			return err
		}
	}
	return nil
}

// Register validates e and adds it. Type names are unique; a catalog never
// replaces an entry.
func (c *Catalog) Register(e Entry) error {
	if e.TypeName == "" {
		return errors.New("register: empty unit process type name")
	}
	if e.Graph == nil {
		return fmt.Errorf("register %s: no rule graph", e.TypeName)
	}
	if err := validateDefaults(e); err != nil {
		return fmt.Errorf("register %s: %w", e.TypeName, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return fmt.Errorf("register %s: %w", e.TypeName, ErrFrozen)
	}
	if prev, dup := c.entries[e.TypeName]; dup {
		return fmt.Errorf("register %s (%s): %w by %s", e.TypeName, e.Origin, ErrDuplicateType, prev.Origin)
	}
	c.entries[e.TypeName] = e.clone()
	return nil
}

func validateDefaults(e Entry) error {
	var errs []error
	for _, name := range sortedKeys(e.Defaults) {
		v := e.Defaults[name]
		d, ok := e.Graph.Declaration(name)
		if !ok {
			errs = append(errs, &core.UnknownQuantityError{Name: name, Context: "default"})
			continue
		}
		if rule, derived := e.Graph.Producer(name); derived {
			errs = append(errs, fmt.Errorf("default for %s: quantity is derived by rule %q", name, rule.Name))
			continue
		}
		if side, bound, crossed := e.Graph.Bounds(name).Check(v); crossed {
			errs = append(errs, &core.InvalidInputError{
				Quantity: name,
				Value:    v,
				Unit:     d.Unit.Symbol(),
				Side:     side,
				Bound:    bound,
				Reason:   "default",
			})
		}
	}
	return errors.Join(errs...)
}

// Freeze stops further registration.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Frozen reports whether the catalog accepts registrations.
func (c *Catalog) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Lookup returns the entry for typeName.
func (c *Catalog) Lookup(typeName string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[typeName]
	if !ok {
		return Entry{}, &core.UnknownTypeError{Name: typeName, Available: sortedKeys(c.entries)}
	}
	return e.clone(), nil
}

// Names returns the registered type names in lexical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.entries)
}

// Entries returns every entry ordered by type name.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, name := range sortedKeys(c.entries) {
		out = append(out, c.entries[name].clone())
	}
	return out
}

// Len returns the number of registered types.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
