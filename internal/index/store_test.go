package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymind/querymind/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(config.IndexConfig{
		Path:            filepath.Join(t.TempDir(), "index.db"),
		MaxConnections:  2,
		MaxIdleConns:    1,
		ConnMaxLifetime: "5m",
	})
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func sampleEntries() []Entry {
	return []Entry{
		{
			ConnectionID: "shop",
			Table:        "customers",
			Document:     "Table: customers",
			Digest:       "digest-customers",
			Vector:       []float32{1, 0, 0},
		},
		{
			ConnectionID: "shop",
			Table:        "orders",
			Document:     "Table: orders",
			Digest:       "digest-orders",
			Vector:       []float32{0, 1, 0},
		},
		{
			ConnectionID: "shop",
			Table:        "products",
			Document:     "Table: products",
			Digest:       "digest-products",
			Vector:       []float32{0.7, 0.7, 0},
		},
	}
}

func TestUpsertAllAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAll(ctx, "shop", sampleEntries()))

	count, err := store.Count(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUpsertAllReplacesPreviousEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAll(ctx, "shop", sampleEntries()))

	// Re-index with a smaller schema: stale tables must disappear
	require.NoError(t, store.UpsertAll(ctx, "shop", sampleEntries()[:1]))

	count, err := store.Count(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	digests, err := store.Digests(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"customers": "digest-customers"}, digests)
}

func TestUpsertAllIsolatedPerConnection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAll(ctx, "shop", sampleEntries()))
	require.NoError(t, store.UpsertAll(ctx, "crm", sampleEntries()[:2]))
	require.NoError(t, store.Delete(ctx, "crm"))

	count, err := store.Count(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSearchOrdersByScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAll(ctx, "shop", sampleEntries()))

	matches, err := store.Search(ctx, "shop", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "customers", matches[0].Table)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "products", matches[1].Table)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	store := newTestStore(t)

	matches, err := store.Search(context.Background(), "unknown", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchKLargerThanIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAll(ctx, "shop", sampleEntries()))

	matches, err := store.Search(ctx, "shop", []float32{0, 1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "never-indexed"))
	require.NoError(t, store.Delete(ctx, "never-indexed"))
}

func TestRecordAndListHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &QueryRecord{
		ConnectionID: "shop",
		Question:     "how many orders?",
		GeneratedSQL: "SELECT COUNT(*) FROM orders",
		Accepted:     true,
		RowCount:     1,
		ElapsedMS:    12,
	}
	require.NoError(t, store.RecordQuery(ctx, first))
	assert.NotEmpty(t, first.ID)

	// Ordering is by timestamp, keep the two inserts apart
	time.Sleep(2 * time.Millisecond)

	second := &QueryRecord{
		ConnectionID: "shop",
		Question:     "drop everything",
		GeneratedSQL: "DROP TABLE orders",
		Accepted:     false,
		RejectReason: "forbidden-keyword",
	}
	require.NoError(t, store.RecordQuery(ctx, second))

	records, err := store.ListHistory(ctx, "shop", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "drop everything", records[0].Question)
	assert.False(t, records[0].Accepted)
	assert.Equal(t, "forbidden-keyword", records[0].RejectReason)
	assert.True(t, records[1].Accepted)
}

func TestListHistoryScopedToConnection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordQuery(ctx, &QueryRecord{
		ConnectionID: "shop", Question: "q1", Accepted: true,
	}))
	require.NoError(t, store.RecordQuery(ctx, &QueryRecord{
		ConnectionID: "crm", Question: "q2", Accepted: true,
	}))

	records, err := store.ListHistory(ctx, "crm", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "q2", records[0].Question)
}
