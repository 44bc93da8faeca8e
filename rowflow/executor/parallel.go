package executor

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelMap runs fn over inputs with at most workers goroutines and
// returns results in input order. workers <= 0 uses NumCPU. The first
// failure cancels the context passed to the remaining calls and is
// returned with its input index.
func ParallelMap[In, Out any](ctx context.Context, workers int, inputs []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]Out, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		g.Go(func() error {
			out, err := fn(gctx, in)
			if err != nil {
				return fmt.Errorf("parallel execution failed at index %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
