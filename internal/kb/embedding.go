package kb

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// OfflineEmbedder is a deterministic, non-semantic embedding fallback used
// when no real embedding backend is configured. Each text is hashed with
// SHA-256 and the checksum seeds a deterministic generator, so identical
// text maps to an identical vector across runs and processes, and
// different texts collide only with negligible probability. It exists only
// to keep the pipeline exercisable without a model.
type OfflineEmbedder struct {
	dims int
}

// NewOfflineEmbedder creates an offline embedder producing vectors of the
// given dimension. Non-positive dims fall back to
// DefaultEmbeddingDimensions.
func NewOfflineEmbedder(dims int) *OfflineEmbedder {
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}
	return &OfflineEmbedder{dims: dims}
}

// Embed returns one vector per input text, in input order. It never fails.
func (e *OfflineEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = e.vector(text)
	}
	return vecs, nil
}

// Dimensions reports the vector length this embedder produces.
func (e *OfflineEmbedder) Dimensions() int { return e.dims }

func (e *OfflineEmbedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))
	vec := make([]float32, e.dims)
	for i := range vec {
		vec[i] = float32(rng.Float64())
	}
	return vec
}
