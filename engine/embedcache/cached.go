package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/WessleyAI/roadwise/engine/vecindex"
)

// Embedder serves embeddings from a Store and forwards only cache misses to
// Next. Cache failures are logged and fall through to Next.
type Embedder struct {
	Next   vecindex.Embedder
	Store  *Store
	Model  string
	Logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Embed implements vecindex.Embedder.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cached, err := e.Store.Lookup(ctx, e.Model, texts)
	if err != nil {
		logger.Warn("embedcache: lookup failed", "err", err)
		cached = nil
	}

	out := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	for i, t := range texts {
		if v, ok := cached[t]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingAt = append(missingAt, i)
	}
	e.hits.Add(int64(len(texts) - len(missing)))
	e.misses.Add(int64(len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := e.Next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedcache: embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, i := range missingAt {
		out[i] = vecs[j]
	}
	if err := e.Store.Put(ctx, e.Model, missing, vecs); err != nil {
		logger.Warn("embedcache: store failed", "err", err, "texts", len(missing))
	}
	return out, nil
}

// Stats returns the hit and miss counts since creation.
func (e *Embedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}
