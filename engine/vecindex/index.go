// Package vecindex is an exact inner-product nearest-neighbour index over the
// embeddings of the road-name vocabulary.
package vecindex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/pkg/fn"
	"gonum.org/v1/gonum/floats"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// Defaults used by Build and by callers that do not configure search.
const (
	DefaultBatchSize = 10
	DefaultTopK      = 3
	DefaultThreshold = 0.6
)

// Options configures Build.
type Options struct {
	// BatchSize bounds the number of texts per embedding request.
	BatchSize int
	// Parallelism is the number of batches embedded concurrently. Values
	// below 2 embed sequentially.
	Parallelism int
	Logger      *slog.Logger
}

// DefaultOptions returns sequential batches of DefaultBatchSize.
func DefaultOptions() Options {
	return Options{BatchSize: DefaultBatchSize, Parallelism: 1}
}

// Match is one search hit.
type Match struct {
	Road  string  `json:"road"`
	Score float32 `json:"score"`
}

// Index holds one vector per road name. It is read-only once built and safe
// for concurrent searches.
type Index struct {
	names   []string
	vectors [][]float64
	dim     int
}

// Build embeds roads in batches and indexes the vectors. It fails with
// domain.ErrInvalidInput on an empty vocabulary or inconsistent dimensions,
// and with domain.ErrUpstream when the embedder fails or returns the wrong
// number of vectors.
func Build(ctx context.Context, roads []string, emb Embedder, opts Options) (*Index, error) {
	if len(roads) == 0 {
		return nil, fmt.Errorf("vecindex: build: empty vocabulary: %w", domain.ErrInvalidInput)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	batches := fn.Chunk(roads, opts.BatchSize)
	results := fn.ParMapResult(ctx, batches, opts.Parallelism, func(ctx context.Context, batch []string) fn.Result[[][]float32] {
		return embedBatch(ctx, emb, batch)
	})
	embedded, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("vecindex: build: %w", err)
	}

	vecs := make([][]float32, 0, len(roads))
	for _, b := range embedded {
		vecs = append(vecs, b...)
	}
	idx, err := fromVectors(roads, vecs)
	if err != nil {
		return nil, err
	}
	logger.Info("vecindex built",
		"roads", len(roads),
		"batches", len(batches),
		"dim", idx.dim,
		"duration", time.Since(start))
	return idx, nil
}

func embedBatch(ctx context.Context, emb Embedder, batch []string) fn.Result[[][]float32] {
	vecs, err := emb.Embed(ctx, batch)
	if err != nil {
		return fn.Err[[][]float32](domain.Upstream("embed batch", err))
	}
	if len(vecs) != len(batch) {
		return fn.Err[[][]float32](domain.Upstream("embed batch",
			fmt.Errorf("got %d vectors for %d texts", len(vecs), len(batch))))
	}
	return fn.Ok(vecs)
}

// FromEntries indexes precomputed vectors, for example ones loaded from a
// cache. The same validation as Build applies.
func FromEntries(entries []domain.EmbeddingIndexEntry) (*Index, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("vecindex: empty vocabulary: %w", domain.ErrInvalidInput)
	}
	names := make([]string, len(entries))
	vecs := make([][]float32, len(entries))
	for i, e := range entries {
		names[i] = e.Road
		vecs[i] = e.Vector
	}
	return fromVectors(names, vecs)
}

func fromVectors(names []string, vecs [][]float32) (*Index, error) {
	dim := len(vecs[0])
	if dim == 0 {
		return nil, fmt.Errorf("vecindex: zero-length embedding: %w", domain.ErrInvalidInput)
	}
	idx := &Index{
		names:   append([]string(nil), names...),
		vectors: make([][]float64, len(vecs)),
		dim:     dim,
	}
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("vecindex: %q has dimension %d, want %d: %w", names[i], len(v), dim, domain.ErrInvalidInput)
		}
		idx.vectors[i] = widen(v)
	}
	return idx, nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Dim returns the vector dimensionality.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of indexed names.
func (x *Index) Len() int { return len(x.names) }

// Entries returns the indexed names and vectors in vocabulary order.
func (x *Index) Entries() []domain.EmbeddingIndexEntry {
	out := make([]domain.EmbeddingIndexEntry, len(x.names))
	for i, n := range x.names {
		v := make([]float32, x.dim)
		for j, f := range x.vectors[i] {
			v[j] = float32(f)
		}
		out[i] = domain.EmbeddingIndexEntry{Road: n, Vector: v}
	}
	return out
}

// Search embeds query with emb and returns up to topK names whose inner
// product with the query is at least threshold, highest score first. Equal
// scores keep vocabulary order. A nil index fails with
// domain.ErrNotInitialized.
func (x *Index) Search(ctx context.Context, query string, emb Embedder, topK int, threshold float32) ([]Match, error) {
	if x == nil || len(x.vectors) == 0 {
		return nil, fmt.Errorf("vecindex: search: %w", domain.ErrNotInitialized)
	}
	if topK < 1 {
		return nil, fmt.Errorf("vecindex: search: top_k %d: %w", topK, domain.ErrInvalidInput)
	}
	vecs, err := emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("vecindex: search: %w", domain.Upstream("embed query", err))
	}
	if len(vecs) != 1 || len(vecs[0]) != x.dim {
		return nil, fmt.Errorf("vecindex: search: %w", domain.Upstream("embed query",
			fmt.Errorf("unexpected query embedding shape")))
	}
	return x.SearchVector(vecs[0], topK, threshold), nil
}

// SearchVector is Search with a precomputed query vector of length Dim.
func (x *Index) SearchVector(q []float32, topK int, threshold float32) []Match {
	qv := widen(q)
	order := make([]int, len(x.vectors))
	scores := make([]float32, len(x.vectors))
	for i, v := range x.vectors {
		order[i] = i
		scores[i] = float32(floats.Dot(qv, v))
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if topK > len(order) {
		topK = len(order)
	}

	var out []Match
	for _, i := range order[:topK] {
		if scores[i] < threshold {
			break
		}
		out = append(out, Match{Road: x.names[i], Score: scores[i]})
	}
	return out
}

// Names projects matches onto road names.
func Names(matches []Match) []string {
	return fn.Map(matches, func(m Match) string { return m.Road })
}
