package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymind/querymind/internal/executor"
	"github.com/querymind/querymind/internal/guardrail"
	"github.com/querymind/querymind/internal/index"
	"github.com/querymind/querymind/internal/logging"
	"github.com/querymind/querymind/internal/prompt"
	"github.com/querymind/querymind/internal/schema"
	"github.com/querymind/querymind/internal/testutil"
)

// scriptedBackend replays a fixed chunk sequence and can cancel the run
// context after the last chunk.
type scriptedBackend struct {
	chunks []string
	err    error
	cancel context.CancelFunc
}

func (b *scriptedBackend) Generate(_ context.Context, _ prompt.Request, emit func(chunk string) error) error {
	for _, chunk := range b.chunks {
		if err := emit(chunk); err != nil {
			return err
		}
	}

	if b.cancel != nil {
		b.cancel()
	}

	return b.err
}

type fakeSource struct {
	model *schema.Model
	err   error
}

func (f *fakeSource) Extract(_ context.Context, connectionID string) (*schema.Model, error) {
	if f.err != nil {
		return nil, f.err
	}

	model := *f.model
	model.ConnectionID = connectionID

	return &model, nil
}

func (f *fakeSource) Close() error { return nil }

func staticSource(source SchemaSource) SchemaSourceFactory {
	return func(context.Context, string, *logging.Logger) (SchemaSource, error) {
		return source, nil
	}
}

func shopModel() *schema.Model {
	return &schema.Model{
		Tables: []schema.TableDescriptor{
			{
				Name: "customers",
				Columns: []schema.ColumnDescriptor{
					{Name: "id", DeclaredType: "integer", IsPrimaryKey: true},
					{Name: "name", DeclaredType: "text", Nullable: true},
				},
			},
			{
				Name: "orders",
				Columns: []schema.ColumnDescriptor{
					{Name: "id", DeclaredType: "integer", IsPrimaryKey: true},
					{Name: "customer_id", DeclaredType: "integer"},
				},
				ForeignKeys: []schema.ForeignKeyRef{
					{Column: "customer_id", RefTable: "customers", RefColumn: "id"},
				},
			},
		},
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()

	var all []Event
	for event := range events {
		all = append(all, event)
	}

	return all
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, event := range events {
		types[i] = event.Type
	}

	return types
}

func findEvent(events []Event, kind EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == kind {
			return event, true
		}
	}

	return Event{}, false
}

func TestIndexConnectionFullRun(t *testing.T) {
	embedder := testutil.NewMockEmbedder()
	idx := testutil.NewMockIndex()
	p := New(Config{
		Embedder:    embedder,
		Index:       idx,
		Credentials: testutil.StaticCredentials{"shop": "postgres://ro@localhost/shop"},
		Schema:      staticSource(&fakeSource{model: shopModel()}),
		TopK:        6,
	})

	events, err := p.IndexConnection(context.Background(), "shop")
	require.NoError(t, err)

	all := collect(t, events)

	done, ok := findEvent(all, EventDone)
	require.True(t, ok, "expected a done event, got %v", eventTypes(all))
	assert.Contains(t, done.Message, "2 tables")

	_, hasProgress := findEvent(all, EventProgress)
	assert.True(t, hasProgress)

	stored := idx.StoredEntries("shop")
	require.Len(t, stored, 2)

	for _, entry := range stored {
		assert.NotEmpty(t, entry.Document)
		assert.NotEmpty(t, entry.Digest)
		assert.NotEmpty(t, entry.Vector)
	}

	assert.Equal(t, 1, embedder.CallCount("EmbedDocuments"))

	for _, event := range all {
		assert.Equal(t, all[0].RequestID, event.RequestID)
	}
}

func TestIndexConnectionSkipsUnchangedSchema(t *testing.T) {
	embedder := testutil.NewMockEmbedder()
	idx := testutil.NewMockIndex()
	p := New(Config{
		Embedder:    embedder,
		Index:       idx,
		Credentials: testutil.StaticCredentials{"shop": "postgres://ro@localhost/shop"},
		Schema:      staticSource(&fakeSource{model: shopModel()}),
	})

	first, err := p.IndexConnection(context.Background(), "shop")
	require.NoError(t, err)
	collect(t, first)

	require.Equal(t, 1, embedder.CallCount("EmbedDocuments"))

	second, err := p.IndexConnection(context.Background(), "shop")
	require.NoError(t, err)

	all := collect(t, second)

	assert.Equal(t, 1, embedder.CallCount("EmbedDocuments"),
		"unchanged schema must not be re-embedded")

	_, ok := findEvent(all, EventDone)
	assert.True(t, ok)
	assert.Equal(t, 1, idx.CallCount("UpsertAll"))

	// Digest comparison alone decides the skip, full entries are never
	// loaded for it.
	assert.Equal(t, 2, idx.CallCount("Digests"))
	assert.Equal(t, 0, idx.CallCount("Entries"))
}

func TestIndexConnectionReembedsOnlyChangedTables(t *testing.T) {
	embedder := testutil.NewMockEmbedder()
	idx := testutil.NewMockIndex()
	model := shopModel()
	p := New(Config{
		Embedder:    embedder,
		Index:       idx,
		Credentials: testutil.StaticCredentials{"shop": "postgres://ro@localhost/shop"},
		Schema:      staticSource(&fakeSource{model: model}),
	})

	first, err := p.IndexConnection(context.Background(), "shop")
	require.NoError(t, err)
	collect(t, first)

	var customersVector []float32

	for _, entry := range idx.StoredEntries("shop") {
		if entry.Table == "customers" {
			customersVector = entry.Vector
		}
	}

	require.NotEmpty(t, customersVector)

	model.Tables[1].Columns = append(model.Tables[1].Columns,
		schema.ColumnDescriptor{Name: "status", DeclaredType: "text", Nullable: true})

	second, err := p.IndexConnection(context.Background(), "shop")
	require.NoError(t, err)
	collect(t, second)

	assert.Equal(t, 2, embedder.CallCount("EmbedDocuments"))
	assert.Equal(t, 1, idx.CallCount("Entries"),
		"stored vectors are loaded once to carry unchanged tables forward")

	for _, entry := range idx.StoredEntries("shop") {
		if entry.Table == "customers" {
			assert.Equal(t, customersVector, entry.Vector)
		}
	}
}

func TestIndexConnectionEmptySchema(t *testing.T) {
	idx := testutil.NewMockIndex(testutil.WithEntries("shop", []index.Entry{
		{ConnectionID: "shop", Table: "dropped_table", Digest: "stale", Vector: []float32{1, 0, 0}},
	}))
	p := New(Config{
		Embedder:    testutil.NewMockEmbedder(),
		Index:       idx,
		Credentials: testutil.StaticCredentials{"shop": "postgres://ro@localhost/shop"},
		Schema:      staticSource(&fakeSource{model: &schema.Model{}}),
	})

	events, err := p.IndexConnection(context.Background(), "shop")
	require.NoError(t, err)

	all := collect(t, events)

	done, ok := findEvent(all, EventDone)
	require.True(t, ok)
	assert.Contains(t, done.Message, "0 tables")

	for _, event := range all {
		assert.NotContains(t, event.Message, "unchanged")
	}

	assert.Equal(t, 1, idx.CallCount("UpsertAll"))
	assert.Empty(t, idx.StoredEntries("shop"))
}

func TestIndexConnectionEmptySchemaNeverIndexed(t *testing.T) {
	idx := testutil.NewMockIndex()
	p := New(Config{
		Embedder:    testutil.NewMockEmbedder(),
		Index:       idx,
		Credentials: testutil.StaticCredentials{"shop": "postgres://ro@localhost/shop"},
		Schema:      staticSource(&fakeSource{model: &schema.Model{}}),
	})

	events, err := p.IndexConnection(context.Background(), "shop")
	require.NoError(t, err)

	all := collect(t, events)

	done, ok := findEvent(all, EventDone)
	require.True(t, ok)
	assert.Contains(t, done.Message, "0 tables")

	for _, event := range all {
		assert.NotContains(t, event.Message, "unchanged")
	}

	assert.Equal(t, 1, idx.CallCount("UpsertAll"))
}

func TestIndexConnectionPurgesStaleTables(t *testing.T) {
	idx := testutil.NewMockIndex(testutil.WithEntries("shop", []index.Entry{
		{ConnectionID: "shop", Table: "dropped_table", Digest: "stale", Vector: []float32{1, 0, 0}},
	}))
	p := New(Config{
		Embedder:    testutil.NewMockEmbedder(),
		Index:       idx,
		Credentials: testutil.StaticCredentials{"shop": "postgres://ro@localhost/shop"},
		Schema:      staticSource(&fakeSource{model: shopModel()}),
	})

	events, err := p.IndexConnection(context.Background(), "shop")
	require.NoError(t, err)
	collect(t, events)

	stored := idx.StoredEntries("shop")
	require.Len(t, stored, 2)

	for _, entry := range stored {
		assert.NotEqual(t, "dropped_table", entry.Table)
	}
}

func TestIndexConnectionUnknownConnection(t *testing.T) {
	p := New(Config{
		Embedder:    testutil.NewMockEmbedder(),
		Index:       testutil.NewMockIndex(),
		Credentials: testutil.StaticCredentials{},
		Schema:      staticSource(&fakeSource{model: shopModel()}),
	})

	events, err := p.IndexConnection(context.Background(), "missing")
	require.NoError(t, err)

	all := collect(t, events)

	failure, ok := findEvent(all, EventError)
	require.True(t, ok)
	assert.Contains(t, failure.Err, "missing")

	_, done := findEvent(all, EventDone)
	assert.False(t, done)
}

func TestIndexConnectionRequiresConnectionID(t *testing.T) {
	p := New(Config{})

	_, err := p.IndexConnection(context.Background(), "")
	assert.Error(t, err)
}

func queryPipeline(backend *scriptedBackend, gateway *testutil.RecordingGateway) (*Pipeline, *testutil.MockIndex) {
	idx := testutil.NewMockIndex(
		testutil.WithEntries("shop", []index.Entry{
			{ConnectionID: "shop", Table: "orders", Digest: "d1"},
			{ConnectionID: "shop", Table: "customers", Digest: "d2"},
		}),
		testutil.WithMatches("shop", []index.Match{
			{Table: "orders", Score: 0.9, Document: "Table: orders"},
			{Table: "customers", Score: 0.7, Document: "Table: customers"},
		}),
	)

	p := New(Config{
		Embedder:    testutil.NewMockEmbedder(),
		Index:       idx,
		Credentials: testutil.StaticCredentials{"shop": "postgres://ro@localhost/shop"},
		Backend:     backend,
		Gateway:     gateway,
		TopK:        6,
	})

	return p, idx
}

func TestAnswerQueryHappyPath(t *testing.T) {
	backend := &scriptedBackend{chunks: []string{"SELECT count(*) ", "FROM orders"}}
	gateway := &testutil.RecordingGateway{
		Result: &executor.Result{Columns: []string{"count"}, Rows: [][]interface{}{{int64(42)}}, RowCount: 1},
	}
	p, idx := queryPipeline(backend, gateway)

	events, err := p.AnswerQuery(context.Background(), "shop", "how many orders?")
	require.NoError(t, err)

	all := collect(t, events)

	var streamed string

	for _, event := range all {
		if event.Type == EventSQLChunk {
			streamed += event.Chunk
		}
	}

	assert.Equal(t, "SELECT count(*) FROM orders", streamed)

	results, ok := findEvent(all, EventResults)
	require.True(t, ok, "expected a results event, got %v", eventTypes(all))
	require.NotNil(t, results.Result)
	assert.Equal(t, 1, results.Result.RowCount)
	require.NotNil(t, results.Verdict)
	assert.True(t, results.Verdict.Accepted)

	_, done := findEvent(all, EventDone)
	assert.True(t, done)

	require.Equal(t, 1, gateway.CallCount())
	assert.Equal(t, "SELECT count(*) FROM orders", gateway.Executed[0].Normalized)

	history := idx.History()
	require.Len(t, history, 1)
	assert.True(t, history[0].Accepted)
	assert.Equal(t, 1, history[0].RowCount)
}

func TestAnswerQueryRejectedNeverExecutes(t *testing.T) {
	backend := &scriptedBackend{chunks: []string{"DROP TABLE orders"}}
	gateway := &testutil.RecordingGateway{}
	p, idx := queryPipeline(backend, gateway)

	events, err := p.AnswerQuery(context.Background(), "shop", "remove the orders table")
	require.NoError(t, err)

	all := collect(t, events)

	rejected, ok := findEvent(all, EventRejected)
	require.True(t, ok, "expected a rejected event, got %v", eventTypes(all))
	require.NotNil(t, rejected.Verdict)
	assert.False(t, rejected.Verdict.Accepted)
	assert.Equal(t, guardrail.ReasonForbiddenKeyword, rejected.Verdict.Reason)

	assert.Equal(t, 0, gateway.CallCount())

	history := idx.History()
	require.Len(t, history, 1)
	assert.False(t, history[0].Accepted)
	assert.Equal(t, guardrail.ReasonForbiddenKeyword, history[0].RejectReason)

	_, done := findEvent(all, EventDone)
	assert.True(t, done, "a rejection still ends the run cleanly")
}

func TestAnswerQueryCancellationSkipsExecutor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	backend := &scriptedBackend{chunks: []string{"SELECT 1"}, cancel: cancel}
	gateway := &testutil.RecordingGateway{}
	p, _ := queryPipeline(backend, gateway)

	events, err := p.AnswerQuery(ctx, "shop", "anything")
	require.NoError(t, err)

	all := collect(t, events)

	_, failed := findEvent(all, EventError)
	assert.True(t, failed)
	assert.Equal(t, 0, gateway.CallCount(), "a canceled run must never reach the executor")
}

func TestAnswerQueryNotIndexed(t *testing.T) {
	p := New(Config{
		Embedder:    testutil.NewMockEmbedder(),
		Index:       testutil.NewMockIndex(),
		Credentials: testutil.StaticCredentials{"empty": "postgres://ro@localhost/empty"},
		Backend:     &scriptedBackend{},
		Gateway:     &testutil.RecordingGateway{},
		TopK:        6,
	})

	events, err := p.AnswerQuery(context.Background(), "empty", "anything")
	require.NoError(t, err)

	all := collect(t, events)

	failure, ok := findEvent(all, EventError)
	require.True(t, ok)
	assert.Contains(t, failure.Err, "indexed")
}

func TestAnswerQueryRefusalSurfacesDetail(t *testing.T) {
	backend := &scriptedBackend{chunks: []string{"-- cannot answer with the available schema"}}
	gateway := &testutil.RecordingGateway{}
	p, _ := queryPipeline(backend, gateway)

	events, err := p.AnswerQuery(context.Background(), "shop", "what is the meaning of life?")
	require.NoError(t, err)

	all := collect(t, events)

	rejected, ok := findEvent(all, EventRejected)
	require.True(t, ok)
	assert.Equal(t, guardrail.ReasonUnparseable, rejected.Verdict.Reason)
	assert.Contains(t, rejected.Verdict.Detail, "declined")
	assert.Equal(t, 0, gateway.CallCount())
}
