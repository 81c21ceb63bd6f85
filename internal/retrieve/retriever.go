// Package retrieve finds the schema documents most relevant to a question.
package retrieve

import (
	"context"

	"github.com/querymind/querymind/internal/embedding"
	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/index"
	"github.com/querymind/querymind/internal/logging"
)

// SchemaIndex is the slice of the index the retriever needs.
type SchemaIndex interface {
	Count(ctx context.Context, connectionID string) (int, error)
	Search(ctx context.Context, connectionID string, vector []float32, k int) ([]index.Match, error)
}

// Retrieval is the outcome of one retrieval pass.
type Retrieval struct {
	ConnectionID string
	Question     string
	Matches      []index.Match
}

// TableNames returns the retrieved table names in match order. This is the
// scope set the validator checks generated SQL against.
func (r *Retrieval) TableNames() []string {
	names := make([]string, len(r.Matches))
	for i, match := range r.Matches {
		names[i] = match.Table
	}

	return names
}

// Retriever embeds questions and searches the schema index.
type Retriever struct {
	embedder embedding.Client
	idx      SchemaIndex
	topK     int
	logger   *logging.Logger
}

// NewRetriever creates a retriever that returns at most topK matches.
func NewRetriever(embedder embedding.Client, idx SchemaIndex, topK int, logger *logging.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		idx:      idx,
		topK:     topK,
		logger:   logger,
	}
}

// Retrieve embeds the question and returns the most similar schema
// documents. A connection that was never indexed is an error; an indexed
// connection with no similar documents yields an empty match list.
func (r *Retriever) Retrieve(ctx context.Context, connectionID, question string) (*Retrieval, error) {
	count, err := r.idx.Count(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, errors.NewNotIndexedError(connectionID)
	}

	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	matches, err := r.idx.Search(ctx, connectionID, vector, r.topK)
	if err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"connection": connectionID,
			"matches":    len(matches),
		}).Debug("retrieved schema documents")
	}

	return &Retrieval{
		ConnectionID: connectionID,
		Question:     question,
		Matches:      matches,
	}, nil
}
