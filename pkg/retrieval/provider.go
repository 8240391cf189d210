// Package retrieval defines the Provider interface for the knowledge-base
// similarity search driver used by the search_knowledge_base tool (C5, C8,
// §6).
package retrieval

import "context"

// Content is a single indexed knowledge-base chunk.
type Content struct {
	ContentID     string
	Category      string
	Type          string
	Title         string
	Content       string
	ChunkIndex    int
	SourceSection string
}

// Result pairs a Content with its similarity distance (ascending, most
// similar first).
type Result struct {
	Content  Content
	Distance float32
}

// Filter narrows a search to one business's knowledge base. BusinessID is
// required; every tenant's content is partitioned and never cross-matched.
type Filter struct {
	BusinessID string
	Category   string
}

// Provider is the abstraction over any vector-similarity content store.
// Implementations must be safe for concurrent use.
type Provider interface {
	// IndexContent upserts a pre-embedded Content chunk.
	IndexContent(ctx context.Context, businessID string, c Content, embedding []float32) error

	// Search returns the topK chunks whose embeddings are closest (cosine
	// distance) to embedding, filtered by filter.
	Search(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Result, error)
}
