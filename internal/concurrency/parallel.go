// Package concurrency runs bounded fan-out over slices.
package concurrency

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ParallelOptions configures the worker pool.
type ParallelOptions struct {
	// MaxWorkers caps the number of items in flight. Values <= 0 mean 10.
	MaxWorkers int
}

func DefaultOptions() ParallelOptions {
	return ParallelOptions{
		MaxWorkers: 10,
	}
}

func (o ParallelOptions) workers(n int) int {
	w := o.MaxWorkers
	if w <= 0 {
		w = 10
	}
	if w > n {
		w = n
	}
	return w
}

// ProcessParallel calls itemFunc for every item with at most MaxWorkers in
// flight. Results keep the input order; errors are collected in completion
// order. Items not yet started when ctx is done are skipped and leave a zero
// result.
func ProcessParallel[T any, R any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	results := make([]R, len(items))
	var (
		mu   sync.Mutex
		errs []error
	)
	run(ctx, len(items), opts, func(i int) {
		r, err := itemFunc(ctx, i, items[i])
		results[i] = r
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	})
	return results, errs
}

// ForEach is ProcessParallel for side effects only.
func ForEach[T any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) error,
) []error {
	if len(items) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	run(ctx, len(items), opts, func(i int) {
		if err := itemFunc(ctx, i, items[i]); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	})
	return errs
}

func run(ctx context.Context, n int, opts ParallelOptions, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(opts.workers(n))
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
