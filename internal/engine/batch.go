package engine

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/unitdesign/pkg/record"
)

// Result pairs a batch request with its outcome. Exactly one of Record and
// Err is set.
type Result struct {
	Request Request
	Record  *record.Record
	Err     error
}

// ResolveBatch resolves independent requests concurrently, at most limit at
// a time (GOMAXPROCS when limit < 1). Results keep request order and one
// failing request does not stop the others. Requests not yet started when
// ctx ends fail with its error.
func (e *Engine) ResolveBatch(ctx context.Context, reqs []Request, limit int) []Result {
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Request: req, Err: fmt.Errorf("request not started: %w", err)}
				return nil
			}
			rec, err := e.ResolveRequest(ctx, req)
			results[i] = Result{Request: req, Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Debug("batch resolved", "requests", len(reqs), "failed", countFailed(results))
	return results
}

func countFailed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
