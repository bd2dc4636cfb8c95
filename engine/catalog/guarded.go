package catalog

import (
	"sync"

	"github.com/WessleyAI/roadwise/engine/domain"
)

// Guarded serializes Update against concurrent reads for callers that share
// one catalog between goroutines (HTTP handlers, refresh consumers).
type Guarded struct {
	mu  sync.RWMutex
	cat *Catalog
}

// NewGuarded wraps c.
func NewGuarded(c *Catalog) *Guarded { return &Guarded{cat: c} }

// FindVersions is Catalog.FindVersions under a read lock.
func (g *Guarded) FindVersions(query string) []domain.RoadVersionRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cat.FindVersions(query)
}

// RoadNames is Catalog.RoadNames under a read lock.
func (g *Guarded) RoadNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cat.RoadNames()
}

// Records is Catalog.Records under a read lock.
func (g *Guarded) Records() []domain.RoadVersionRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cat.Records()
}

// Len is Catalog.Len under a read lock.
func (g *Guarded) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cat.Len()
}

// Update is Catalog.Update under the write lock.
func (g *Guarded) Update() ([]domain.RoadVersionRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cat.Update()
}
