package vecindex

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/WessleyAI/roadwise/engine/domain"
)

// Holder publishes the current index to concurrent readers. Rebuilds swap in
// a new index; in-flight searches keep using the one they loaded.
type Holder struct {
	cur atomic.Pointer[Index]
}

// Store replaces the current index.
func (h *Holder) Store(x *Index) { h.cur.Store(x) }

// Load returns the current index, or nil before the first Store.
func (h *Holder) Load() *Index { return h.cur.Load() }

// Search delegates to the current index.
func (h *Holder) Search(ctx context.Context, query string, emb Embedder, topK int, threshold float32) ([]Match, error) {
	x := h.cur.Load()
	if x == nil {
		return nil, fmt.Errorf("vecindex: search: %w", domain.ErrNotInitialized)
	}
	return x.Search(ctx, query, emb, topK, threshold)
}
