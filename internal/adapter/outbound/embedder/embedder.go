// Package embedder provides the Tier-2 semantic router's default
// text-to-vector implementation: a dependency-free hashing-trick
// embedder, so the semantic tier works out of the box without a
// provider round trip.
package embedder

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/aegiscore/aegis/internal/domain/intent"
)

// HashingEmbedder is a deterministic bag-of-words embedder: each token is
// hashed into one of dims buckets (the "hashing trick"), so it needs no
// vocabulary, model weights, or network call. It implements intent.Embedder.
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder builds a HashingEmbedder projecting into dims
// buckets; 256 is a reasonable default for short tool-routing phrases.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashingEmbedder{dims: dims}
}

var _ intent.Embedder = (*HashingEmbedder)(nil)

// Embed tokenizes text on whitespace/punctuation, hashes each token with
// xxhash into a bucket, and accumulates term counts into that bucket —
// the same signature primitive already used for the Tier-1 cache key,
// repurposed here as a feature hash instead of a single digest.
func (h *HashingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dims)
	for _, tok := range tokenize(text) {
		bucket := xxhash.Sum64String(tok) % uint64(h.dims)
		vec[bucket]++
	}
	return vec, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return fields
}
