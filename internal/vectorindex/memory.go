package vectorindex

import (
	"context"
	"fmt"
	"sync"
)

var _ Backend = (*MemoryBackend)(nil)

type memCollection struct {
	dim  int
	vecs map[int64][]float32
}

// MemoryBackend keeps vectors in process memory and answers queries by
// brute-force cosine scan. Safe for concurrent use.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memCollection)}
}

func (m *MemoryBackend) EnsureCollection(_ context.Context, name string, dim int) error {
	if err := ValidateCollection(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		if c.dim != dim {
			return fmt.Errorf("collection %q has dimension %d, requested %d", name, c.dim, dim)
		}
		return nil
	}
	m.collections[name] = &memCollection{dim: dim, vecs: make(map[int64][]float32)}
	return nil
}

func (m *MemoryBackend) Upsert(_ context.Context, collection string, key int64, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCollection, collection)
	}
	if len(vec) != c.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dim)
	}
	c.vecs[key] = append([]float32(nil), vec...)
	return nil
}

func (m *MemoryBackend) Query(_ context.Context, collection string, vec []float32, k int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCollection, collection)
	}
	if len(vec) != c.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dim)
	}

	qNorm := norm(vec)
	if qNorm == 0 || k <= 0 {
		return nil, nil
	}
	best := newTopK(k)
	for key, v := range c.vecs {
		best.offer(key, cosine(vec, v, qNorm))
	}
	return best.keys(), nil
}

// Len returns the number of vectors stored in collection.
func (m *MemoryBackend) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.vecs)
	}
	return 0
}

func (m *MemoryBackend) Close() error { return nil }
