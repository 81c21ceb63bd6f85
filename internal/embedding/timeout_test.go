package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalledClient never answers until the context expires.
type stalledClient struct{}

func (stalledClient) EmbedDocuments(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledClient) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledClient) Dimensions() int { return 3 }

func (stalledClient) Name() string { return "stalled" }

func TestWithTimeoutBoundsDocumentEmbedding(t *testing.T) {
	client := WithTimeout(stalledClient{}, 20*time.Millisecond)

	start := time.Now()
	_, err := client.EmbedDocuments(context.Background(), []string{"Table: orders"})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second, "call must return at the deadline")
}

func TestWithTimeoutBoundsQueryEmbedding(t *testing.T) {
	client := WithTimeout(stalledClient{}, 20*time.Millisecond)

	_, err := client.EmbedQuery(context.Background(), "how many orders?")

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutKeepsEarlierDeadline(t *testing.T) {
	client := WithTimeout(stalledClient{}, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.EmbedQuery(ctx, "anything")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutZeroReturnsClientUnwrapped(t *testing.T) {
	client := WithTimeout(stalledClient{}, 0)

	_, unwrapped := client.(stalledClient)
	assert.True(t, unwrapped)
}

func TestWithTimeoutPreservesMetadata(t *testing.T) {
	client := WithTimeout(stalledClient{}, time.Second)

	assert.Equal(t, 3, client.Dimensions())
	assert.Equal(t, "stalled", client.Name())
}
