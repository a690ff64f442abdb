package resolver

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/record"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// tiny keeps the relative change defined when both values are zero.
const tiny = 1e-12

// pinned reports whether the caller supplied q. Caller values are never
// overwritten by rules.
func pinned(q core.Quantity) bool {
	return q.Resolved && q.Source.Kind == core.SourceInput
}

// evaluate resolves an acyclic group.
func (s *run) evaluate(grp rulegraph.Group) error {
	rule := grp.Rules[0]
	report := record.GroupReport{
		Index:      grp.Index,
		Rules:      []string{rule.Name},
		Quantities: []string{rule.Output},
		Converged:  true,
	}

	out := s.values[rule.Output]
	if pinned(out) {
		s.logger.Debug("output supplied by caller, rule skipped", "rule", rule.Name, "quantity", rule.Output)
		s.reports = append(s.reports, report)
		return nil
	}

	v, err := s.compute(rule, s.inputsFor(rule, nil))
	if err != nil {
		return err
	}
	if err := s.checkDerived(rule, v); err != nil {
		return err
	}
	s.values[rule.Output] = out.WithValue(v, core.Derived(rule.Name))

	report.Iterations = 1
	s.reports = append(s.reports, report)
	return nil
}

// iterate resolves a cyclic group by Jacobi fixed-point iteration. Members
// supplied by the caller stay fixed; the rest start from an initial guess and
// are updated together each sweep until the largest change falls to the
// tolerance.
func (s *run) iterate(grp rulegraph.Group) error {
	report := record.GroupReport{
		Index:      grp.Index,
		Rules:      grp.RuleNames(),
		Quantities: grp.Outputs(),
		Cyclic:     true,
	}

	var free []core.Rule
	for _, rule := range grp.Rules {
		if pinned(s.values[rule.Output]) {
			s.logger.Debug("cyclic member supplied by caller", "rule", rule.Name, "quantity", rule.Output)
			continue
		}
		free = append(free, rule)
	}
	if len(free) == 0 {
		report.Converged = true
		s.reports = append(s.reports, report)
		return nil
	}

	estimates := make(map[string]float64, len(free))
	for _, rule := range free {
		estimates[rule.Output] = s.initialGuess(rule.Output)
	}

	failure := func(iterations int, residual float64, cause error) error {
		groupIterations.Observe(float64(iterations))
		return &core.ConvergenceError{
			Group:      report.Rules,
			Quantities: report.Quantities,
			Iterations: iterations,
			Residual:   residual,
			Cause:      cause,
		}
	}

	residual := math.Inf(1)
	for k := 1; k <= s.cfg.MaxIterations; k++ {
		candidates, err := s.sweep(free, estimates)
		if err != nil {
			return failure(k, math.Inf(1), err)
		}

		residual = 0
		next := make(map[string]float64, len(free))
		for i, rule := range free {
			old := estimates[rule.Output]
			v := candidates[i]
			if s.cfg.Relaxation < 1 {
				v = old + s.cfg.Relaxation*(v-old)
			}
			next[rule.Output] = v
			residual = math.Max(residual, s.change(old, v))
		}
		estimates = next
		s.logger.Debug("fixed-point sweep", "group", grp.Index, "iteration", k, "residual", residual)

		if residual <= s.cfg.ConvergenceTolerance {
			groupIterations.Observe(float64(k))
			for _, rule := range free {
				v := estimates[rule.Output]
				if err := s.checkDerived(rule, v); err != nil {
					return err
				}
				s.values[rule.Output] = s.values[rule.Output].
					WithValue(v, core.Derived(rule.Name)).
					WithIteration(k)
			}
			report.Iterations = k
			report.Residual = residual
			report.Converged = true
			s.reports = append(s.reports, report)
			return nil
		}
	}
	return failure(s.cfg.MaxIterations, residual, nil)
}

// sweep evaluates every rule against the same estimates. Errors are reported
// in rule order regardless of evaluation order.
func (s *run) sweep(rules []core.Rule, estimates map[string]float64) ([]float64, error) {
	values := make([]float64, len(rules))
	errs := make([]error, len(rules))
	eval := func(i int) {
		values[i], errs[i] = s.compute(rules[i], s.inputsFor(rules[i], estimates))
	}

	if s.cfg.Parallel && len(rules) > 1 {
		var g errgroup.Group
		for i := range rules {
			g.Go(func() error {
				eval(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range rules {
			eval(i)
		}
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

// change measures how far one member moved in a sweep.
func (s *run) change(old, v float64) float64 {
	diff := math.Abs(v - old)
	if s.cfg.Criterion == CriterionAbsolute {
		return diff
	}
	return diff / math.Max(math.Max(math.Abs(v), math.Abs(old)), tiny)
}

func (s *run) initialGuess(name string) float64 {
	bounds := s.values[name].Bounds
	guess := func() (float64, bool) {
		if v, ok := s.req.Guesses[name]; ok {
			return v, true
		}
		if d, ok := s.graph.Declaration(name); ok && d.Guess.Valid {
			return d.Guess.Value, true
		}
		return 0, false
	}

	switch s.cfg.InitialGuessStrategy {
	case StrategyFixedConstant:
	case StrategyBoundMidpoint:
		if mid, ok := bounds.Midpoint(); ok {
			return mid
		}
		if v, ok := guess(); ok {
			return v
		}
	default:
		if v, ok := guess(); ok {
			return v
		}
		if mid, ok := bounds.Midpoint(); ok {
			return mid
		}
	}
	return s.cfg.InitialGuessConstant
}

// inputsFor builds the inputs of rule from resolved values, overlaid with
// the current estimates of a cyclic group.
func (s *run) inputsFor(rule core.Rule, estimates map[string]float64) core.InputSet {
	in := make(core.InputSet, len(rule.Inputs))
	for _, name := range rule.Inputs {
		q := s.values[name]
		v := q.Value
		if e, ok := estimates[name]; ok {
			v = e
		}
		in[name] = units.Of(v, q.Unit)
	}
	return in
}

// compute calls the rule and converts its result to the output's declared
// unit. Failures, panics and non-finite results become ComputationErrors.
func (s *run) compute(rule core.Rule, in core.InputSet) (v float64, err error) {
	ruleEvaluations.Inc()

	fail := func(reason string, cause error) error {
		floats := make(map[string]float64, len(in))
		for name, m := range in {
			floats[name] = m.Value
		}
		return &core.ComputationError{Rule: rule.Name, Reason: reason, Inputs: floats, Err: cause}
	}

	defer func() {
		if p := recover(); p != nil {
			err = fail(fmt.Sprintf("panic: %v", p), nil)
		}
	}()

	m, cerr := rule.Compute.Compute(in)
	if cerr != nil {
		return 0, fail(cerr.Error(), cerr)
	}
	if !m.Unit.IsZero() {
		converted, uerr := m.In(s.values[rule.Output].Unit)
		if uerr != nil {
			return 0, fail(uerr.Error(), uerr)
		}
		m = converted
	}
	switch {
	case math.IsNaN(m.Value):
		return 0, fail("result is NaN", nil)
	case math.IsInf(m.Value, 0):
		return 0, fail(fmt.Sprintf("result is %v", m.Value), nil)
	}
	return m.Value, nil
}

func (s *run) checkDerived(rule core.Rule, v float64) error {
	q := s.values[rule.Output]
	if side, bound, crossed := q.Bounds.Check(v); crossed {
		return &core.ConstraintViolationError{
			Rule:     rule.Name,
			Quantity: rule.Output,
			Value:    v,
			Unit:     q.Unit.Symbol(),
			Side:     side,
			Bound:    bound,
		}
	}
	return nil
}
