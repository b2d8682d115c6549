package embedder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegiscore/aegis/internal/domain/intent"
	"github.com/aegiscore/aegis/internal/domain/provider"
)

// ProviderEmbedder implements intent.Embedder by asking the Provider
// Client for an embedding vector instead of hashing tokens locally. It
// calls Generate rather than a dedicated embeddings transport, so it
// inherits the Provider Client's retry, timeout, and circuit-breaker
// behavior for free instead of re-implementing them here.
//
// This degrades to whatever the configured model actually returns: a
// provider with no native embeddings endpoint, prompted to emit a JSON
// float array, yields lower-quality vectors than one with a real
// embeddings API behind the same Transport.
type ProviderEmbedder struct {
	client  *provider.Client
	modelID string
}

// NewProviderEmbedder builds a ProviderEmbedder that requests embeddings
// from client using modelID.
func NewProviderEmbedder(client *provider.Client, modelID string) *ProviderEmbedder {
	return &ProviderEmbedder{client: client, modelID: modelID}
}

var _ intent.Embedder = (*ProviderEmbedder)(nil)

// Embed sends text to the provider and parses the response content as a
// JSON array of floats.
func (p *ProviderEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := p.client.Generate(ctx, provider.Request{
		Messages: []provider.Message{
			{Role: "system", Content: "Respond with only a JSON array of floats: an embedding vector for the user's text. No other text."},
			{Role: "user", Content: text},
		},
		ProviderID: "embedding",
		ModelID:    p.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: provider call failed: %w", err)
	}

	var vec []float64
	if err := json.Unmarshal([]byte(resp.Content), &vec); err != nil {
		return nil, fmt.Errorf("embedder: provider response was not a JSON float array: %w", err)
	}
	return vec, nil
}
