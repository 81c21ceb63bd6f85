package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymind/querymind/internal/index"
)

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, 60*time.Second, requestTimeout("60s"))
	assert.Equal(t, 2*time.Minute, requestTimeout("120s"))
	assert.Equal(t, time.Duration(0), requestTimeout("soon"))
}

func TestDropIndexEntriesDeletesConnection(t *testing.T) {
	appConfig = nil
	t.Cleanup(func() { appConfig = nil })

	t.Setenv("QUERYMIND_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("QUERYMIND_INDEX_PATH", filepath.Join(t.TempDir(), "index.db"))

	ctx := context.Background()

	cfg, err := getConfig()
	require.NoError(t, err)

	store, err := openStore(ctx, cfg)
	require.NoError(t, err)

	require.NoError(t, store.UpsertAll(ctx, "shop", []index.Entry{
		{ConnectionID: "shop", Table: "orders", Document: "Table: orders", Digest: "d1", Vector: []float32{1, 0, 0}},
	}))
	require.NoError(t, store.Close())

	dropIndexEntries(ctx, "shop")

	store, err = openStore(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	count, err := store.Count(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
