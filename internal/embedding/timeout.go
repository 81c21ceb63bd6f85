package embedding

import (
	"context"
	"time"
)

// WithTimeout bounds every embedding call of the wrapped client with its
// own deadline derived from the caller's context. A non-positive timeout
// returns the client unwrapped.
func WithTimeout(client Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return client
	}

	return &timeoutClient{Client: client, timeout: timeout}
}

type timeoutClient struct {
	Client
	timeout time.Duration
}

func (c *timeoutClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.Client.EmbedDocuments(ctx, texts)
}

func (c *timeoutClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.Client.EmbedQuery(ctx, text)
}
