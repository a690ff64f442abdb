package resolver

import (
	"errors"
	"fmt"
	"log/slog"
)

// Strategy selects the initial estimate for members of a cyclic group.
type Strategy string

// Initial guess strategies.
const (
	// StrategyUserValue prefers a guess supplied with the request, then the
	// declared guess, then the bound midpoint, then the configured constant.
	StrategyUserValue Strategy = "user_value"
	// StrategyBoundMidpoint prefers the midpoint of the quantity's bounds.
	StrategyBoundMidpoint Strategy = "bound_midpoint"
	// StrategyFixedConstant always starts from the configured constant.
	StrategyFixedConstant Strategy = "fixed_constant"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyUserValue, StrategyBoundMidpoint, StrategyFixedConstant:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	v := Strategy(text)
	if !v.Valid() {
		return fmt.Errorf("unknown initial guess strategy %q (want user_value, bound_midpoint or fixed_constant)", text)
	}
	*s = v
	return nil
}

// Criterion selects how the per-quantity change between sweeps is measured.
type Criterion string

// Convergence criteria.
const (
	// CriterionRelative measures |new-old| / max(|new|, |old|, tiny).
	CriterionRelative Criterion = "relative"
	// CriterionAbsolute measures |new-old| in the quantity's declared unit.
	CriterionAbsolute Criterion = "absolute"
)

// Valid reports whether c is a known criterion.
func (c Criterion) Valid() bool {
	return c == CriterionRelative || c == CriterionAbsolute
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Criterion) UnmarshalText(text []byte) error {
	v := Criterion(text)
	if !v.Valid() {
		return fmt.Errorf("unknown convergence criterion %q (want relative or absolute)", text)
	}
	*c = v
	return nil
}

// Config holds resolver options.
type Config struct {
	// ConvergenceTolerance is the largest change across a cyclic group's
	// members that counts as converged.
	ConvergenceTolerance float64
	// MaxIterations bounds the sweeps spent on one cyclic group.
	MaxIterations int
	// InitialGuessStrategy picks the starting estimate of cyclic members.
	InitialGuessStrategy Strategy
	// InitialGuessConstant is the fallback starting estimate.
	InitialGuessConstant float64
	// Criterion selects relative or absolute change.
	Criterion Criterion
	// Relaxation in (0, 1] damps each update: next = old + r*(candidate-old).
	Relaxation float64
	// Parallel evaluates the rules of one sweep concurrently.
	Parallel bool
	// Logger for resolver operations. If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the default resolver options.
func DefaultConfig() Config {
	return Config{
		ConvergenceTolerance: 1e-6,
		MaxIterations:        100,
		InitialGuessStrategy: StrategyUserValue,
		InitialGuessConstant: 1.0,
		Criterion:            CriterionRelative,
		Relaxation:           1.0,
	}
}

// Validate reports every invalid option.
func (c Config) Validate() error {
	var errs []error
	if !(c.ConvergenceTolerance > 0) {
		errs = append(errs, fmt.Errorf("convergence_tolerance must be positive, got %g", c.ConvergenceTolerance))
	}
	if c.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations))
	}
	if !c.InitialGuessStrategy.Valid() {
		errs = append(errs, fmt.Errorf("unknown initial_guess_strategy %q", c.InitialGuessStrategy))
	}
	if !c.Criterion.Valid() {
		errs = append(errs, fmt.Errorf("unknown convergence criterion %q", c.Criterion))
	}
	if !(c.Relaxation > 0 && c.Relaxation <= 1) {
		errs = append(errs, fmt.Errorf("relaxation must be in (0, 1], got %g", c.Relaxation))
	}
	return errors.Join(errs...)
}
