package fn

import (
	"context"
	"sync"
)

// ParMapResult applies f to items with at most workers calls in flight and
// returns the results in input order. Once ctx is done, items not yet
// started fail with ctx.Err() instead of running.
func ParMapResult[T, U any](ctx context.Context, items []T, workers int, f func(context.Context, T) Result[U]) []Result[U] {
	out := make([]Result[U], len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		if err := ctx.Err(); err != nil {
			out[i] = Err[U](err)
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(ctx, v)
		}(i, v)
	}
	wg.Wait()
	return out
}
