package metrics

import (
	"context"
	"runtime"
	"time"
)

// CollectRuntime samples goroutine count and heap usage into gauges named
// <prefix>_goroutines and <prefix>_heap_bytes every interval until ctx ends.
func (r *Registry) CollectRuntime(ctx context.Context, prefix string, interval time.Duration) {
	goroutines := r.Gauge(prefix+"_goroutines", "Number of goroutines")
	heap := r.Gauge(prefix+"_heap_bytes", "Heap bytes in use")
	sample := func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		goroutines.Set(int64(runtime.NumGoroutine()))
		heap.Set(int64(ms.HeapAlloc))
	}
	sample()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sample()
			}
		}
	}()
}
