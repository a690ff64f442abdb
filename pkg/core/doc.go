// Package core defines the shared language of the unit design system.
//
// This package contains:
//   - Quantities, bounds and provenance (Quantity, Bounds, Source)
//   - Quantity declarations used by rule graphs (QuantityDecl)
//   - The rule authoring interface (Rule, Computer, Inputs)
//   - The error taxonomy shared by the graph, resolver and catalog
//
// The Golden Rule: pkg/core imports ONLY pkg/units and stdlib.
// All other packages depend on core, not the reverse.
package core
