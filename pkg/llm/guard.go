package llm

import (
	"context"

	"github.com/WessleyAI/roadwise/pkg/resilience"
)

// Guarded runs a Chatter behind a circuit breaker. A stream that fails
// after emitting tokens still counts as a failure.
type Guarded struct {
	Next    Chatter
	Breaker *resilience.Breaker
}

// Chat implements Chatter.
func (g *Guarded) Chat(ctx context.Context, msgs []Message) (string, error) {
	var out string
	err := g.Breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Next.Chat(ctx, msgs)
		return err
	})
	return out, err
}

// Stream implements Chatter.
func (g *Guarded) Stream(ctx context.Context, msgs []Message, onToken func(string)) error {
	return g.Breaker.Call(ctx, func(ctx context.Context) error {
		return g.Next.Stream(ctx, msgs, onToken)
	})
}

// Model implements Chatter.
func (g *Guarded) Model() string { return g.Next.Model() }
