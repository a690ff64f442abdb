// Package engine is the resolution entry point: it assembles the catalog
// from built-in definitions, Starlark formula modules and HCL definitions,
// then resolves designs by unit process type name.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/unitdesign/internal/catalog"
	"github.com/leapstack-labs/unitdesign/internal/resolver"
	"github.com/leapstack-labs/unitdesign/internal/starlark"
	"github.com/leapstack-labs/unitdesign/pkg/record"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Engine resolves designs against a frozen catalog. It is safe for
// concurrent use.
type Engine struct {
	cfg      Config
	catalog  *catalog.Catalog
	formulas *starlark.Library
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// CatalogDir holds *.hcl unit process definitions (optional)
	CatalogDir string
	// FormulasDir holds *.star formula modules (optional)
	FormulasDir string
	// Resolver options. Its Logger defaults to the engine logger.
	Resolver resolver.Config
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New loads formulas and definitions and freezes the catalog. A missing
// directory contributes nothing; any invalid definition fails the load.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Resolver.Logger == nil {
		cfg.Resolver.Logger = logger
	}

	logger.Debug("initializing engine", "catalog_dir", cfg.CatalogDir, "formulas_dir", cfg.FormulasDir)

	res, err := resolver.New(cfg.Resolver)
	if err != nil {
		return nil, err
	}

	var formulas *starlark.Library
	if cfg.FormulasDir != "" {
		formulas, err = starlark.LoadLibrary(cfg.FormulasDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load formulas: %w", err)
		}
		logger.Debug("loaded formula modules", "namespaces", formulas.Namespaces())
	}

	cat, err := catalog.Builtin()
	if err != nil {
		return nil, fmt.Errorf("failed to register built-in unit processes: %w", err)
	}
	if cfg.CatalogDir != "" {
		n, err := cat.LoadDir(cfg.CatalogDir, formulas)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		logger.Debug("loaded unit process definitions", "count", n)
	}
	cat.Freeze()

	logger.Info("engine ready", "unit_processes", cat.Len())
	return &Engine{
		cfg:      cfg,
		catalog:  cat,
		formulas: formulas,
		resolver: res,
		logger:   logger,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Catalog returns the frozen catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Formulas lists the qualified names of the loaded formula functions.
func (e *Engine) Formulas() []string { return e.formulas.Functions() }

// Request is one resolution by type name.
type Request struct {
	Type string `json:"type" yaml:"type"`
	// Inputs in any compatible unit. A zero Unit means the declared unit.
	Inputs map[string]units.Measure `json:"-" yaml:"-"`
	// Guesses are initial estimates for cyclic quantities, in declared units.
	Guesses map[string]float64 `json:"guesses,omitempty" yaml:"guesses,omitempty"`
}

// Resolve computes the design of a typeName unit process from inputs.
func (e *Engine) Resolve(ctx context.Context, typeName string, inputs map[string]units.Measure) (*record.Record, error) {
	return e.ResolveRequest(ctx, Request{Type: typeName, Inputs: inputs})
}

// ResolveRequest computes one design. Catalog defaults fill free quantities
// the request omits; names the graph does not declare are rejected.
func (e *Engine) ResolveRequest(ctx context.Context, req Request) (*record.Record, error) {
	entry, err := e.catalog.Lookup(req.Type)
	if err != nil {
		return nil, err
	}
	return e.resolver.Resolve(ctx, resolver.Request{
		UnitProcess: entry.TypeName,
		Graph:       entry.Graph,
		Inputs:      req.Inputs,
		Defaults:    entry.Defaults,
		Guesses:     req.Guesses,
	})
}
