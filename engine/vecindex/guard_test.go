package vecindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/roadwise/pkg/fn"
	"github.com/WessleyAI/roadwise/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyEmbedder struct {
	failures int
	calls    int
}

func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("503")
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestGuard_RetriesTransientFailures(t *testing.T) {
	next := &flakyEmbedder{failures: 2}
	g := &Guard{
		Next:    next,
		Limiter: resilience.NewLimiter(resilience.LimiterOpts{}),
		Retry:   fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond},
	}
	vecs, err := g.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, next.calls)
}

func TestGuard_OpenBreakerStopsRetrying(t *testing.T) {
	next := &flakyEmbedder{failures: 100}
	g := &Guard{
		Next:    next,
		Breaker: resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Minute}),
		Retry:   fn.RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond},
	}
	_, err := g.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, next.calls)
}

func TestGuard_LimiterHoldsCallsBack(t *testing.T) {
	next := &flakyEmbedder{}
	g := &Guard{
		Next:    next,
		Limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 0.001, Burst: 1}),
		Retry:   fn.RetryOpts{MaxAttempts: 1},
	}
	_, err := g.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Embed(ctx, []string{"b"})
	assert.Error(t, err)
	assert.Equal(t, 1, next.calls, "embedder must not run without a token")
}

func TestGuard_BuildsIndex(t *testing.T) {
	g := &Guard{Next: roadEmbedder()}
	idx, err := Build(context.Background(), vocab, g, DefaultOptions())
	require.NoError(t, err)
	got, err := idx.Search(context.Background(), "king fahd", g, 1, 0.6)
	require.NoError(t, err)
	assert.Equal(t, []string{"King Fahd Rd"}, Names(got))
}
