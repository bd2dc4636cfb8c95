package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/roadwise/pkg/resilience"
)

func TestTail(t *testing.T) {
	var h []Message
	for i := 0; i < 8; i++ {
		h = append(h, Message{Role: RoleUser, Content: string(rune('a' + i))})
	}
	got := Tail(h, 6)
	if len(got) != 6 || got[0].Content != "c" || got[5].Content != "h" {
		t.Fatalf("Tail = %+v", got)
	}
	got[0].Content = "x"
	if h[2].Content != "c" {
		t.Fatal("Tail must copy")
	}
	if len(Tail(h[:2], 6)) != 2 {
		t.Fatal("short history should be returned whole")
	}
	if Tail(h, 0) != nil || Tail(nil, 6) != nil {
		t.Fatal("expected nil")
	}
}

type failingChat struct{ calls int }

func (f *failingChat) Chat(context.Context, []Message) (string, error) {
	f.calls++
	return "", errors.New("503 from model")
}

func (f *failingChat) Stream(_ context.Context, _ []Message, onToken func(string)) error {
	f.calls++
	onToken("partial")
	return errors.New("stream cut")
}

func (f *failingChat) Model() string { return "test-model" }

func TestGuarded_OpensAfterFailures(t *testing.T) {
	next := &failingChat{}
	g := &Guarded{Next: next, Breaker: resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 2, Timeout: time.Minute, HalfOpenMax: 1,
	})}

	for i := 0; i < 2; i++ {
		if _, err := g.Chat(context.Background(), nil); err == nil {
			t.Fatal("expected error")
		}
	}
	err := g.Stream(context.Background(), nil, func(string) {})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("calls = %d", next.calls)
	}
	if g.Model() != "test-model" {
		t.Fatal("model not forwarded")
	}
}
