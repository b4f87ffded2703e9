// Package batch fans a list of inputs out over a fixed number of workers.
// Each worker owns a contiguous slice of the input and its own sessions.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
)

// #region partition

// Partition splits items into at most n contiguous chunks. The first
// len(items)%n chunks carry one extra item. Empty chunks are dropped.
func Partition[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	size, extra := len(items)/n, len(items)%n
	out := make([][]T, 0, n)
	start := 0
	for i := range n {
		end := start + size
		if i < extra {
			end++
		}
		if end > start {
			out = append(out, items[start:end])
		}
		start = end
	}
	return out
}

// #endregion partition

// #region run

// WorkerFunc processes one chunk. worker numbers chunks from 0.
type WorkerFunc[T any] func(ctx context.Context, worker int, chunk []T) error

// Run processes items on up to workers goroutines. The first worker error
// cancels the others and is returned.
func Run[T any](ctx context.Context, items []T, workers int, fn WorkerFunc[T]) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range Partition(items, workers) {
		g.Go(func() error {
			if err := fn(ctx, i, chunk); err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Tally counts what a worker did with its chunk.
type Tally struct {
	Done    int
	Skipped int
}

// Each runs fn over chunk in order. Soft failures (orchestrator.IsSoft) are
// reported to skip and the item is dropped; any other error stops the chunk.
// skip may be nil.
func Each[T any](ctx context.Context, chunk []T, fn func(context.Context, T) error, skip func(T, error)) (Tally, error) {
	var t Tally
	for _, item := range chunk {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		err := fn(ctx, item)
		switch {
		case err == nil:
			t.Done++
		case orchestrator.IsSoft(err):
			t.Skipped++
			if skip != nil {
				skip(item, err)
			}
		default:
			return t, err
		}
	}
	return t, nil
}

// #endregion run
