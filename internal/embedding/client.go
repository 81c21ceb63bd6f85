// Package embedding turns schema documents and user questions into vectors.
package embedding

import "context"

// Client is the interface for embedding backends. Documents and queries
// are embedded with different task types so the backend can optimize for
// asymmetric retrieval.
type Client interface {
	// EmbedDocuments embeds schema documents for indexing. The returned
	// slice preserves input order and always has one vector per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a natural-language question for retrieval.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the expected vector dimensionality.
	Dimensions() int

	// Name returns a human-readable backend identifier.
	Name() string
}
