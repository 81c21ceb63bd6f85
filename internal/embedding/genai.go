package embedding

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/logging"
)

// Documents are embedded in batches of this size to stay under the
// backend's per-request content limit.
const batchSize = 100

// GenAIClient generates embeddings through Google's Gemini API.
type GenAIClient struct {
	client        *genai.Client
	model         string
	dimensions    int
	retryAttempts int
	retryBackoff  time.Duration
	logger        *logging.Logger
}

// NewGenAIClient creates a Gemini-backed embedding client.
func NewGenAIClient(ctx context.Context, cfg config.EmbeddingConfig, logger *logging.Logger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrTypeCredential, "embedding API key is required").
			WithSuggestion("Set QUERYMIND_EMBEDDING_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeEmbedding, "failed to create GenAI client")
	}

	backoff, err := time.ParseDuration(cfg.RetryBackoff)
	if err != nil {
		backoff = 500 * time.Millisecond
	}

	return &GenAIClient{
		client:        client,
		model:         cfg.Model,
		dimensions:    cfg.Dimensions,
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  backoff,
		logger:        logger,
	}, nil
}

// EmbedDocuments embeds schema documents with the retrieval-document task
// type, batching the input to stay under the request size limit.
func (c *GenAIClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		batch, err := c.embedBatch(ctx, texts[start:end], "RETRIEVAL_DOCUMENT")
		if err != nil {
			return nil, err
		}

		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery embeds a question with the retrieval-query task type.
func (c *GenAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embedBatch(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (c *GenAIClient) embedBatch(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var result *genai.EmbedContentResponse

	err := c.withRetry(ctx, func() error {
		var callErr error
		result, callErr = c.client.Models.EmbedContent(ctx,
			c.model,
			contents,
			&genai.EmbedContentConfig{
				TaskType: task,
			},
		)

		return callErr
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeEmbedding, "embedding request failed")
	}

	if len(result.Embeddings) != len(texts) {
		return nil, errors.Newf(errors.ErrTypeEmbedding,
			"embedding count mismatch: sent %d texts, got %d vectors",
			len(texts), len(result.Embeddings))
	}

	vectors := make([][]float32, len(result.Embeddings))

	for i, emb := range result.Embeddings {
		if len(emb.Values) != c.dimensions {
			return nil, errors.Newf(errors.ErrTypeIndexCorruption,
				"embedding dimension mismatch: expected %d, got %d",
				c.dimensions, len(emb.Values))
		}

		vectors[i] = emb.Values
	}

	return vectors, nil
}

// withRetry runs fn, retrying transient failures with linear backoff.
// Retries are off unless configured.
func (c *GenAIClient) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			if c.logger != nil {
				c.logger.WithField("attempt", attempt).Warn("retrying embedding request")
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

// Dimensions returns the expected vector dimensionality.
func (c *GenAIClient) Dimensions() int {
	return c.dimensions
}

// Name returns the backend identifier.
func (c *GenAIClient) Name() string {
	return fmt.Sprintf("genai:%s", c.model)
}
