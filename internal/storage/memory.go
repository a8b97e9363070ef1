package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process vector store using brute-force cosine
// similarity. It is meant for local development and tests; contents are
// lost on exit.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	points    map[string]*Point
	order     []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// Open implements Opener. All sessions share the same collections.
func (m *MemoryStore) Open(ctx context.Context) (VectorStore, error) {
	return m, nil
}

// Health implements VectorStore.
func (m *MemoryStore) Health(ctx context.Context) error { return nil }

// Close implements VectorStore; the shared collections stay available.
func (m *MemoryStore) Close() error { return nil }

// CollectionExists implements VectorStore.
func (m *MemoryStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

// CreateCollection implements VectorStore.
func (m *MemoryStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateIndexName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dimension)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	m.collections[name] = &memoryCollection{
		dimension: dimension,
		points:    make(map[string]*Point),
	}
	return nil
}

// DropCollection implements VectorStore.
func (m *MemoryStore) DropCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// ListCollections implements VectorStore.
func (m *MemoryStore) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UpsertPoints implements VectorStore.
func (m *MemoryStore) UpsertPoints(ctx context.Context, name string, points []*Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	for i, p := range points {
		if len(p.Vector) != c.dimension {
			return fmt.Errorf("%w: point %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(p.Vector), c.dimension)
		}
	}
	for _, p := range points {
		cp := *p
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = &cp
	}
	return nil
}

// Search implements VectorStore.
func (m *MemoryStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]*ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), c.dimension)
	}

	hits := make([]*ScoredPoint, 0, len(c.order))
	for _, id := range c.order {
		p := c.points[id]
		hits = append(hits, &ScoredPoint{Point: *p, Score: cosine(vector, p.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count implements VectorStore.
func (m *MemoryStore) Count(ctx context.Context, name string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	return uint64(len(c.points)), nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
