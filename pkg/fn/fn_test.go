package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
}

func TestFromPair(t *testing.T) {
	if v, _ := FromPair(strconv.Atoi("12")).Unwrap(); v != 12 {
		t.Fatalf("got %d", v)
	}
	if FromPair(strconv.Atoi("x")).IsOk() {
		t.Fatal("expected error to pass through")
	}
}

func TestCollect(t *testing.T) {
	boom := errors.New("boom")
	all := []Result[int]{Ok(1), Err[int](boom), Ok(3)}

	if _, err := Collect(all).Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("Collect err = %v", err)
	}
	if v, _ := Collect([]Result[int]{Ok(1), Ok(2)}).Unwrap(); len(v) != 2 {
		t.Fatal("Collect should keep all values")
	}
}

// --- slices ---

func TestChunk(t *testing.T) {
	got := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != 5 {
		t.Fatalf("Chunk = %v", got)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("Chunk with n=0 should be nil")
	}
	if len(Chunk([]int{}, 3)) != 0 {
		t.Fatal("empty input should give no chunks")
	}
}

func TestUniqueFilterMap(t *testing.T) {
	u := Unique([]string{"b", "a", "b", "c", "a"})
	if len(u) != 3 || u[0] != "b" || u[1] != "a" || u[2] != "c" {
		t.Fatalf("Unique = %v", u)
	}
	even := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 })
	if len(even) != 2 {
		t.Fatalf("Filter = %v", even)
	}
	sq := Map([]int{1, 2, 3}, func(n int) int { return n * n })
	if sq[2] != 9 {
		t.Fatalf("Map = %v", sq)
	}
}

// --- parallel ---

func TestParMapResult_Order(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	var inFlight, peak int32
	out := ParMapResult(context.Background(), items, 2, func(_ context.Context, n int) Result[int] {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(time.Duration(n) * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return Ok(n * 10)
	})
	for i, r := range out {
		if v, _ := r.Unwrap(); v != items[i]*10 {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
	if peak > 2 {
		t.Fatalf("peak concurrency %d > 2", peak)
	}
}

func TestParMapResult_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := ParMapResult(ctx, []int{1, 2}, 1, func(_ context.Context, n int) Result[int] {
		t.Fatal("should not run")
		return Ok(n)
	})
	for _, r := range out {
		if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	}
}

// --- stages ---

func TestThenAndTap(t *testing.T) {
	parse := Stage[string, int](func(_ context.Context, s string) Result[int] {
		return FromPair(strconv.Atoi(s))
	})
	double := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })

	r := Then(parse, TracedStage("double", Then(double, double)))(context.Background(), "3")
	if v, _ := r.Unwrap(); v != 12 {
		t.Fatalf("got %d", v)
	}
	if Then(parse, double)(context.Background(), "nope").IsOk() {
		t.Fatal("parse error should short-circuit")
	}

	var seen int
	tap := TapStage(func(_ context.Context, n int) { seen = n })
	Then(double, tap)(context.Background(), 4)
	if seen != 8 {
		t.Fatalf("tap saw %d", seen)
	}
}

// --- retry ---

func TestRetry_SucceedsEventually(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		calls++
		if calls < 3 {
			return Err[string](errors.New("flaky"))
		}
		return Ok("done")
	})
	if v, err := r.Unwrap(); err != nil || v != "done" || calls != 3 {
		t.Fatalf("v=%q err=%v calls=%d", v, err, calls)
	}
}

func TestRetry_NonRetryableStops(t *testing.T) {
	permanent := errors.New("bad input")
	calls := 0
	opts := RetryOpts{
		MaxAttempts: 5,
		InitialWait: time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](permanent)
	})
	if r.IsOk() || calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r := RetryStage(RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, Stage[int, int](func(context.Context, int) Result[int] {
		calls++
		cancel()
		return Err[int](errors.New("x"))
	}))(ctx, 1)
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
