package provider

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
)

// HashEmbedder produces a deterministic pseudo-embedding seeded from the
// text's FNV-1a hash. It carries no semantic signal beyond exact-text
// identity and stands in when no embedding service is configured.
type HashEmbedder struct {
	Dim int
}

func NewHashEmbedder(dim int) HashEmbedder {
	return HashEmbedder{Dim: dim}
}

// Embed returns Dim values in [-1, 1).
func (h HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f := fnv.New64a()
	f.Write([]byte(text))
	seed := f.Sum64()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float32, h.Dim)
	for i := range out {
		out[i] = float32(rng.Float64()*2 - 1)
	}
	return out, nil
}
