// Package resilience guards calls to the embedding and chat services with a
// circuit breaker and a token-bucket rate limiter.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/roadwise/pkg/fn"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // rejecting calls
	StateHalfOpen              // allowing probe calls
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures the circuit breaker.
type BreakerOpts struct {
	// Name labels the breaker in state-change callbacks.
	Name string
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before entering half-open.
	Timeout time.Duration
	// HalfOpenMax is the number of probe calls allowed in half-open state.
	HalfOpenMax int
	// IsFailure decides which errors count against the breaker. Nil counts
	// every error except context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called, without the lock held, after each transition.
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerOpts provides the defaults used for upstream clients.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker implements a circuit breaker with closed/open/half-open states.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time
}

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	if opts.IsFailure == nil {
		opts.IsFailure = countsAsFailure
	}
	return &Breaker{opts: opts, now: time.Now}
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	st, tr := b.currentState()
	b.mu.Unlock()
	b.notify(tr)
	return st
}

type transition struct {
	from, to State
	changed  bool
}

// currentState moves open to half-open once the timeout elapsed. Must hold mu.
func (b *Breaker) currentState() (State, transition) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.halfOpenCount = 0
		return b.setState(StateHalfOpen)
	}
	return b.state, transition{}
}

// setState must hold mu.
func (b *Breaker) setState(to State) (State, transition) {
	tr := transition{from: b.state, to: to, changed: b.state != to}
	b.state = to
	return to, tr
}

func (b *Breaker) notify(tr transition) {
	if tr.changed && b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.opts.Name, tr.from, tr.to)
	}
}

// admit reserves a call slot or reports the circuit as open.
func (b *Breaker) admit() error {
	b.mu.Lock()
	st, tr := b.currentState()
	var err error
	switch st {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			err = ErrCircuitOpen
		} else {
			b.halfOpenCount++
		}
	}
	b.mu.Unlock()
	b.notify(tr)
	return err
}

// record updates counters with the outcome of an admitted call.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	var tr transition
	switch {
	case err != nil && b.opts.IsFailure(err):
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.openedAt = b.now()
			b.failures = 0
			b.halfOpenCount = 0
			_, tr = b.setState(StateOpen)
		}
	case err == nil:
		b.failures = 0
		if b.state == StateHalfOpen {
			_, tr = b.setState(StateClosed)
		}
	default:
		// ignored error: release the probe slot without changing state
		if b.state == StateHalfOpen && b.halfOpenCount > 0 {
			b.halfOpenCount--
		}
	}
	b.mu.Unlock()
	b.notify(tr)
}

// Call executes f through the circuit breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := f(ctx)
	b.record(err)
	return err
}

// CallResult is Call for functions returning an fn.Result.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	if err := b.admit(); err != nil {
		return fn.Err[T](err)
	}
	r := f(ctx)
	_, err := r.Unwrap()
	b.record(err)
	return r
}

// BreakerStage wraps an fn.Stage with circuit breaker protection.
func BreakerStage[In, Out any](b *Breaker, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return CallResult(b, ctx, func(ctx context.Context) fn.Result[Out] {
			return stage(ctx, in)
		})
	}
}
