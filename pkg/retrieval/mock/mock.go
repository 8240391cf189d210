// Package mock provides a test double for the retrieval.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/relaycall/voicegateway/pkg/retrieval"
)

// Provider is a mock implementation of retrieval.Provider.
type Provider struct {
	mu sync.Mutex

	// SearchResults is returned by Search.
	SearchResults []retrieval.Result
	// SearchErr, if non-nil, is returned as the error from Search.
	SearchErr error

	// SearchFilters records every filter passed to Search, in order.
	SearchFilters []retrieval.Filter
}

// IndexContent is a no-op that always succeeds.
func (p *Provider) IndexContent(ctx context.Context, businessID string, c retrieval.Content, embedding []float32) error {
	return nil
}

// Search records the filter and returns SearchResults, SearchErr.
func (p *Provider) Search(ctx context.Context, embedding []float32, topK int, filter retrieval.Filter) ([]retrieval.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchFilters = append(p.SearchFilters, filter)
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}
	return p.SearchResults, nil
}

var _ retrieval.Provider = (*Provider)(nil)
