package resolver

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leapstack-labs/unitdesign/pkg/core"
)

var tracer = otel.Tracer("unitdesign.resolver")

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// resolutionTotal counts resolutions by unit process and outcome
	resolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unitdesign_resolutions_total",
		Help: "Total design resolutions by unit process and result",
	}, []string{"unit_process", "result"})

	// resolutionDuration tracks resolution latency
	resolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "unitdesign_resolution_duration_seconds",
		Help:    "Design resolution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
	}, []string{"unit_process"})

	// groupIterations tracks fixed-point sweeps per cyclic group
	groupIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "unitdesign_cyclic_group_iterations",
		Help:    "Fixed-point iterations spent per cyclic group",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 500},
	})

	// ruleEvaluations counts rule evaluations
	ruleEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unitdesign_rule_evaluations_total",
		Help: "Total rule evaluations",
	})
)

// resultLabel maps an error to its kind for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrComputation):
		return "computation_error"
	case errors.Is(err, core.ErrConvergenceFailure):
		return "convergence_failure"
	case errors.Is(err, core.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, core.ErrConstraintViolation):
		return "constraint_violation"
	case errors.Is(err, core.ErrUnderspecified):
		return "underspecified"
	case errors.Is(err, core.ErrUnknownQuantity):
		return "unknown_quantity"
	case errors.Is(err, core.ErrUnitMismatch):
		return "unit_mismatch"
	}
	return "error"
}

func startResolveSpan(ctx context.Context, unitProcess, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(
			attribute.String("unitdesign.unit_process", unitProcess),
			attribute.String("unitdesign.run_id", runID),
		),
	)
}

func startGroupSpan(ctx context.Context, index int, rules []string, cyclic bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Resolver.Group",
		trace.WithAttributes(
			attribute.Int("unitdesign.group.index", index),
			attribute.StringSlice("unitdesign.group.rules", rules),
			attribute.Bool("unitdesign.group.cyclic", cyclic),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, resultLabel(err))
	}
	span.End()
}
