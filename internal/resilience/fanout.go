package resilience

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Failure pairs a fan-out input with the error it produced.
type Failure[I any] struct {
	Input I
	Err   error
}

// FanOutResult collects every outcome of a fan-out: the successes and the
// failures, never an aborted remainder.
type FanOutResult[I, T any] struct {
	Succeeded []T
	Failed    []Failure[I]
}

// FanOut dispatches fn over inputs with at most limit concurrent calls and
// waits for all of them. Individual failures are collected, not propagated:
// a failing input never cancels its siblings. Successes preserve input
// order. A limit <= 0 means unbounded.
func FanOut[I, T any](ctx context.Context, inputs []I, limit int, fn func(context.Context, I) (T, error)) FanOutResult[I, T] {
	results := make([]*T, len(inputs))
	failures := make([]*Failure[I], len(inputs))

	g, gCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	var mu sync.Mutex
	for i, in := range inputs {
		g.Go(func() error {
			val, err := fn(gCtx, in)
			mu.Lock()
			if err != nil {
				failures[i] = &Failure[I]{Input: in, Err: err}
			} else {
				results[i] = &val
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := FanOutResult[I, T]{}
	for i := range inputs {
		if results[i] != nil {
			out.Succeeded = append(out.Succeeded, *results[i])
		} else if failures[i] != nil {
			out.Failed = append(out.Failed, *failures[i])
		}
	}
	return out
}
