package vecindex

import (
	"context"
	"errors"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/pkg/fn"
	"github.com/WessleyAI/roadwise/pkg/resilience"
)

// Guard wraps an embedder with a rate limiter, retries and a circuit
// breaker. Nil parts are skipped. The limiter is consulted once per attempt
// and the breaker sees each attempt's outcome.
type Guard struct {
	Next    Embedder
	Limiter *resilience.Limiter
	Breaker *resilience.Breaker
	Retry   fn.RetryOpts
}

// Embed implements Embedder.
func (g *Guard) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	call := func(ctx context.Context) fn.Result[[][]float32] {
		if g.Breaker != nil {
			return resilience.CallResult(g.Breaker, ctx, func(ctx context.Context) fn.Result[[][]float32] {
				return fn.FromPair(g.Next.Embed(ctx, texts))
			})
		}
		return fn.FromPair(g.Next.Embed(ctx, texts))
	}
	attempt := func(ctx context.Context) fn.Result[[][]float32] {
		if g.Limiter == nil {
			return call(ctx)
		}
		var res fn.Result[[][]float32]
		err := g.Limiter.CallWait(ctx, func(ctx context.Context) error {
			res = call(ctx)
			return nil
		})
		if err != nil {
			return fn.Err[[][]float32](err)
		}
		return res
	}

	opts := g.Retry
	if opts.Retryable == nil {
		opts.Retryable = retryable
	}
	return fn.Retry(ctx, opts, attempt).Unwrap()
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
