// Package resolve maps a free-text question to canonical road names. Three
// strategies share the Resolver contract: embedding similarity search,
// substring catalog lookup, and fuzzy lexical matching.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/vecindex"
	"github.com/WessleyAI/roadwise/pkg/roadnlp"
)

// Resolver maps a query to zero or more road names.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]string, error)
}

// Kind names a resolver strategy in configuration.
type Kind string

const (
	KindEmbedding Kind = "embedding"
	KindSubstring Kind = "substring"
	KindFuzzy     Kind = "fuzzy"
)

// Vocabulary lists the known road names in catalog order.
type Vocabulary interface {
	RoadNames() []string
}

// VersionFinder looks up catalog records by road-name substring.
type VersionFinder interface {
	FindVersions(query string) []domain.RoadVersionRecord
}

// Catalog is what the lexical resolvers need from the metadata catalog.
type Catalog interface {
	Vocabulary
	VersionFinder
}

// Searcher is a built similarity index: vecindex.Index, vecindex.Holder or
// semantic.RoadIndex.
type Searcher interface {
	Search(ctx context.Context, query string, emb vecindex.Embedder, topK int, threshold float32) ([]vecindex.Match, error)
}

// Deps carries everything New may need. Only the fields used by the chosen
// kind must be set.
type Deps struct {
	Catalog     Catalog
	Index       Searcher
	Embedder    vecindex.Embedder
	TopK        int
	Threshold   float32
	FuzzyCutoff float64
	Logger      *slog.Logger
}

// New builds the resolver for kind. The embedding resolver falls back to the
// substring resolver when the embedding service fails.
func New(kind Kind, d Deps) (Resolver, error) {
	switch kind {
	case KindEmbedding:
		if d.Index == nil || d.Embedder == nil {
			return nil, fmt.Errorf("resolve: embedding resolver needs an index and an embedder: %w", domain.ErrInvalidInput)
		}
		emb := &Embedding{Index: d.Index, Embedder: d.Embedder, TopK: d.TopK, Threshold: d.Threshold}
		if d.Catalog == nil {
			return emb, nil
		}
		return &Fallback{Primary: emb, Secondary: &Substring{Catalog: d.Catalog}, Logger: d.Logger}, nil
	case KindSubstring, "":
		if d.Catalog == nil {
			return nil, fmt.Errorf("resolve: substring resolver needs a catalog: %w", domain.ErrInvalidInput)
		}
		return &Substring{Catalog: d.Catalog}, nil
	case KindFuzzy:
		if d.Catalog == nil {
			return nil, fmt.Errorf("resolve: fuzzy resolver needs a catalog: %w", domain.ErrInvalidInput)
		}
		return &Fuzzy{Vocabulary: d.Catalog, Cutoff: d.FuzzyCutoff}, nil
	default:
		return nil, fmt.Errorf("resolve: unknown kind %q: %w", kind, domain.ErrInvalidInput)
	}
}

// Embedding resolves through nearest-neighbour search over road-name
// embeddings.
type Embedding struct {
	Index     Searcher
	Embedder  vecindex.Embedder
	TopK      int
	Threshold float32
}

// Resolve implements Resolver.
func (e *Embedding) Resolve(ctx context.Context, query string) ([]string, error) {
	topK := e.TopK
	if topK <= 0 {
		topK = vecindex.DefaultTopK
	}
	matches, err := e.Index.Search(ctx, query, e.Embedder, topK, e.Threshold)
	if err != nil {
		return nil, fmt.Errorf("resolve: embedding: %w", err)
	}
	return vecindex.Names(matches), nil
}

// Substring returns the catalog roads whose names appear in the query, plus
// those matched by road mentions extracted from it.
type Substring struct {
	Catalog Catalog
}

// Resolve implements Resolver. Results are distinct, in catalog order.
func (s *Substring) Resolve(_ context.Context, query string) ([]string, error) {
	vocab := s.Catalog.RoadNames()
	hit := make(map[string]bool)

	nq := " " + roadnlp.Normalize(query) + " "
	for _, name := range vocab {
		if n := roadnlp.Normalize(name); n != "" && strings.Contains(nq, " "+n+" ") {
			hit[name] = true
		}
	}
	for _, m := range roadnlp.Extract(query) {
		recs := s.Catalog.FindVersions(m.Name)
		if len(recs) == 0 && m.Direction != "" {
			recs = s.Catalog.FindVersions(strings.TrimSpace(strings.TrimSuffix(m.Name, m.Direction)))
		}
		for _, r := range recs {
			hit[r.Road] = true
		}
	}

	var out []string
	for _, name := range vocab {
		if hit[name] {
			out = append(out, name)
			delete(hit, name)
		}
	}
	return out, nil
}

// Fallback uses Secondary when Primary fails with an upstream error.
type Fallback struct {
	Primary   Resolver
	Secondary Resolver
	Logger    *slog.Logger
}

// Resolve implements Resolver.
func (f *Fallback) Resolve(ctx context.Context, query string) ([]string, error) {
	names, err := f.Primary.Resolve(ctx, query)
	if err == nil || !errors.Is(err, domain.ErrUpstream) {
		return names, err
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("resolve: primary failed, using fallback", "err", err)
	return f.Secondary.Resolve(ctx, query)
}
