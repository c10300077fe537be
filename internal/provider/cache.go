package provider

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// CachedEmbedder memoizes embeddings by exact text. Failed calls are not
// cached.
type CachedEmbedder struct {
	next  Embedder
	cache *lru.Cache
}

func NewCachedEmbedder(next Embedder, size int) (*CachedEmbedder, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, clone(vec))
	return vec, nil
}

// Len reports the number of cached entries.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
