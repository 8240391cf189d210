// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/relaycall/voicegateway/pkg/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Vector is returned by Embed for every call.
	Vector []float32
	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// Vectors is returned by EmbedBatch, one per input text in order. If
	// shorter than the input, Vector is repeated for the remainder.
	Vectors [][]float32
	// EmbedBatchErr, if non-nil, is returned as the error from EmbedBatch.
	EmbedBatchErr error

	// Dims is returned by Dimensions.
	Dims int

	// Model is returned by ModelID.
	Model string

	// EmbedCalls records every text passed to Embed, in order.
	EmbedCalls []string
}

// Embed records text and returns Vector, EmbedErr.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.Vector, nil
}

// EmbedBatch returns Vectors (padded with Vector), EmbedBatchErr.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		if i < len(p.Vectors) {
			out[i] = p.Vectors[i]
		} else {
			out[i] = p.Vector
		}
	}
	return out, nil
}

// Dimensions returns Dims.
func (p *Provider) Dimensions() int { return p.Dims }

// ModelID returns Model.
func (p *Provider) ModelID() string { return p.Model }

var _ embeddings.Provider = (*Provider)(nil)
