// Package resolver computes complete designs from sparse inputs.
//
// A resolution seeds the caller's values, walks the rule graph's resolution
// groups in order, iterates cyclic groups to a fixed point and checks every
// bound as soon as a value is assigned. It either returns a complete record
// or an error; there is no partial result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/unitdesign/internal/rulegraph"
	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/record"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Request describes one resolution.
type Request struct {
	// UnitProcess names the unit process type, copied into the record.
	UnitProcess string
	// Graph is the rule graph to resolve.
	Graph *rulegraph.Graph
	// Inputs are the caller's values. A Measure with a zero Unit is taken to
	// be in the quantity's declared unit.
	Inputs map[string]units.Measure
	// Defaults apply to quantities no rule derives and the caller omitted.
	// Values are in declared units.
	Defaults map[string]float64
	// Guesses are initial estimates for cyclic group members, in declared units.
	Guesses map[string]float64
}

// Resolver resolves requests. It is safe for concurrent use; every call owns
// its own quantity set.
type Resolver struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a resolver.
func New(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("resolver config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{cfg: cfg, logger: logger}, nil
}

// Config returns the resolver's options.
func (r *Resolver) Config() Config { return r.cfg }

// Resolve computes every quantity of req.Graph. The context carries tracing
// only; resolution is not interrupted.
func (r *Resolver) Resolve(ctx context.Context, req Request) (rec *record.Record, err error) {
	if req.Graph == nil {
		return nil, errors.New("resolve: request has no rule graph")
	}

	runID := uuid.NewString()
	start := time.Now()
	ctx, span := startResolveSpan(ctx, req.UnitProcess, runID)
	logger := r.logger.With("run_id", runID, "unit_process", req.UnitProcess)

	defer func() {
		resolutionTotal.WithLabelValues(req.UnitProcess, resultLabel(err)).Inc()
		resolutionDuration.WithLabelValues(req.UnitProcess).Observe(time.Since(start).Seconds())
		endSpan(span, err)
		if err != nil {
			logger.Debug("resolution failed", "error", err)
		}
	}()

	s := &run{
		cfg:    r.cfg,
		logger: logger,
		req:    req,
		graph:  req.Graph,
		values: make(map[string]core.Quantity),
	}

	logger.Debug("resolving design", "inputs", len(req.Inputs), "groups", len(req.Graph.Groups()))
	if err := s.seed(); err != nil {
		return nil, err
	}
	if err := s.resolveGroups(ctx); err != nil {
		return nil, err
	}

	rec = record.New(req.UnitProcess, s.quantities(), s.reports)
	logger.Debug("design resolved",
		"quantities", rec.Len(),
		"duration", time.Since(start),
		"digest", rec.Digest())
	return rec, nil
}

// run is the state of one resolution. Nothing outside the run sees it.
type run struct {
	cfg     Config
	logger  *slog.Logger
	req     Request
	graph   *rulegraph.Graph
	values  map[string]core.Quantity
	reports []record.GroupReport
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// seed validates the request and assigns inputs and defaults. Checks run in
// a fixed order and each reports every offending name before any rule runs:
// unknown names, unit conversion, input bounds, completeness.
func (s *run) seed() error {
	for _, d := range s.graph.Declarations() {
		q := core.Unresolved(d)
		q.Bounds = s.graph.Bounds(d.Name)
		s.values[d.Name] = q
	}

	var errs []error
	unknown := func(names []string, context string) {
		for _, name := range names {
			if _, ok := s.values[name]; !ok {
				errs = append(errs, &core.UnknownQuantityError{Name: name, Context: context})
			}
		}
	}
	unknown(sortedKeys(s.req.Inputs), "input")
	unknown(sortedKeys(s.req.Guesses), "initial guess")
	unknown(sortedKeys(s.req.Defaults), "default")
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	inputs := make(map[string]float64, len(s.req.Inputs))
	for _, name := range sortedKeys(s.req.Inputs) {
		m := s.req.Inputs[name]
		q := s.values[name]
		if m.Unit.IsZero() {
			inputs[name] = m.Value
			continue
		}
		v, err := units.Convert(m.Value, m.Unit, q.Unit)
		if err != nil {
			errs = append(errs, fmt.Errorf("input %s: %w", name, err))
			continue
		}
		inputs[name] = v
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, name := range sortedKeys(inputs) {
		if err := checkInput(s.values[name], inputs[name]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for name, v := range inputs {
		s.values[name] = s.values[name].WithValue(v, core.Input())
	}

	for _, name := range sortedKeys(s.req.Defaults) {
		q := s.values[name]
		if q.Resolved {
			continue
		}
		if s.graph.Derivable(name) {
			s.logger.Debug("ignoring default for derived quantity", "quantity", name)
			continue
		}
		v := s.req.Defaults[name]
		if err := checkInput(q, v); err != nil {
			return fmt.Errorf("default: %w", err)
		}
		s.values[name] = q.WithValue(v, core.Default())
	}

	var missing []string
	for _, name := range s.graph.FreeQuantities() {
		if !s.values[name].Resolved {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &core.UnderspecifiedError{Missing: missing}
	}
	return nil
}

func checkInput(q core.Quantity, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &core.InvalidInputError{Quantity: q.Name, Value: v, Unit: q.Unit.Symbol(), Reason: "value is not finite"}
	}
	if side, bound, crossed := q.Bounds.Check(v); crossed {
		return &core.InvalidInputError{
			Quantity: q.Name,
			Value:    v,
			Unit:     q.Unit.Symbol(),
			Side:     side,
			Bound:    bound,
		}
	}
	return nil
}

// resolveGroups processes groups in order. A group whose inputs are not yet
// resolved is deferred and retried after the next group resolves.
func (s *run) resolveGroups(ctx context.Context) error {
	pending := s.graph.Groups()
	for len(pending) > 0 {
		next := -1
		for i, grp := range pending {
			if s.ready(grp) {
				next = i
				break
			}
			s.logger.Debug("deferring group", "group", grp.Index, "rules", grp.RuleNames())
		}
		if next < 0 {
			return &core.UnderspecifiedError{Missing: s.unresolved()}
		}
		if err := s.resolveGroup(ctx, pending[next]); err != nil {
			return err
		}
		pending = slices.Delete(pending, next, next+1)
	}

	if missing := s.unresolved(); len(missing) > 0 {
		return &core.UnderspecifiedError{Missing: missing}
	}
	return nil
}

// ready reports whether every input the group reads from outside itself is resolved.
func (s *run) ready(grp rulegraph.Group) bool {
	outputs := grp.Outputs()
	for _, r := range grp.Rules {
		for _, in := range r.Inputs {
			if slices.Contains(outputs, in) {
				continue
			}
			if !s.values[in].Resolved {
				return false
			}
		}
	}
	return true
}

func (s *run) unresolved() []string {
	var out []string
	for _, name := range sortedKeys(s.values) {
		if !s.values[name].Resolved {
			out = append(out, name)
		}
	}
	return out
}

func (s *run) resolveGroup(ctx context.Context, grp rulegraph.Group) (err error) {
	_, span := startGroupSpan(ctx, grp.Index, grp.RuleNames(), grp.Cyclic)
	defer func() { endSpan(span, err) }()

	s.logger.Debug("resolving group", "group", grp.Index, "rules", grp.RuleNames(), "cyclic", grp.Cyclic)
	if grp.Cyclic {
		return s.iterate(grp)
	}
	return s.evaluate(grp)
}

func (s *run) quantities() []core.Quantity {
	out := make([]core.Quantity, 0, len(s.values))
	for _, name := range sortedKeys(s.values) {
		out = append(out, s.values[name])
	}
	return out
}
