package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/querymind/querymind/internal/credential"
	"github.com/querymind/querymind/internal/document"
	"github.com/querymind/querymind/internal/embedding"
	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/executor"
	"github.com/querymind/querymind/internal/generate"
	"github.com/querymind/querymind/internal/guardrail"
	"github.com/querymind/querymind/internal/index"
	"github.com/querymind/querymind/internal/logging"
	"github.com/querymind/querymind/internal/prompt"
	"github.com/querymind/querymind/internal/retrieve"
	"github.com/querymind/querymind/internal/schema"
)

// Documents are embedded in batches of this size, with progress reported
// per completed batch.
const embedBatchSize = 100

// embedConcurrency bounds how many embedding batches run at once.
const embedConcurrency = 4

// Index is the slice of the schema index the pipeline needs.
type Index interface {
	Count(ctx context.Context, connectionID string) (int, error)
	Search(ctx context.Context, connectionID string, vector []float32, k int) ([]index.Match, error)
	UpsertAll(ctx context.Context, connectionID string, entries []index.Entry) error
	Digests(ctx context.Context, connectionID string) (map[string]string, error)
	Entries(ctx context.Context, connectionID string) ([]index.Entry, error)
	RecordQuery(ctx context.Context, record *index.QueryRecord) error
}

// SchemaSource produces schema snapshots of one database.
type SchemaSource interface {
	Extract(ctx context.Context, connectionID string) (*schema.Model, error)
	Close() error
}

// SchemaSourceFactory opens a schema source for a DSN.
type SchemaSourceFactory func(ctx context.Context, dsn string, logger *logging.Logger) (SchemaSource, error)

// PostgresSchemaSource is the production schema source factory.
func PostgresSchemaSource(ctx context.Context, dsn string, logger *logging.Logger) (SchemaSource, error) {
	return schema.NewExtractor(ctx, dsn, logger)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Embedder     embedding.Client
	Index        Index
	Credentials  credential.Provider
	Backend      generate.Backend
	Gateway      executor.Gateway
	Schema       SchemaSourceFactory
	TopK         int
	EnforceScope bool
	Logger       *logging.Logger
}

// Pipeline orchestrates indexing and query answering.
type Pipeline struct {
	embedder    embedding.Client
	idx         Index
	credentials credential.Provider
	generator   *generate.Generator
	retriever   *retrieve.Retriever
	gateway     executor.Gateway
	validator   *guardrail.Validator
	schema      SchemaSourceFactory
	logger      *logging.Logger
}

// New creates a pipeline from the given configuration.
func New(cfg Config) *Pipeline {
	if cfg.Schema == nil {
		cfg.Schema = PostgresSchemaSource
	}

	return &Pipeline{
		embedder:    cfg.Embedder,
		idx:         cfg.Index,
		credentials: cfg.Credentials,
		generator:   generate.NewGenerator(cfg.Backend, cfg.Logger),
		retriever:   retrieve.NewRetriever(cfg.Embedder, cfg.Index, cfg.TopK, cfg.Logger),
		gateway:     cfg.Gateway,
		validator:   guardrail.NewValidator(cfg.EnforceScope),
		schema:      cfg.Schema,
		logger:      cfg.Logger,
	}
}

// IndexConnection extracts the schema of a connection, embeds changed
// documents, and atomically swaps the connection's index entries. Progress
// is reported on the returned event stream, which closes when the run ends.
func (p *Pipeline) IndexConnection(ctx context.Context, connectionID string) (<-chan Event, error) {
	if connectionID == "" {
		return nil, errors.New(errors.ErrTypeInternal, "connection identifier is required")
	}

	events := make(chan Event, 64)
	requestID := uuid.New().String()

	go func() {
		defer close(events)
		p.runIndex(ctx, connectionID, requestID, events)
	}()

	return events, nil
}

func (p *Pipeline) emit(ctx context.Context, events chan<- Event, requestID string, event Event) {
	event.RequestID = requestID

	// Deliver into free buffer space even when the context is already
	// canceled, so terminal events are not lost.
	select {
	case events <- event:
		return
	default:
	}

	select {
	case events <- event:
	case <-ctx.Done():
	}
}

func (p *Pipeline) runIndex(ctx context.Context, connectionID, requestID string, events chan<- Event) {
	emit := func(event Event) { p.emit(ctx, events, requestID, event) }
	fail := func(err error) {
		if p.logger != nil {
			p.logger.WithField("connection", connectionID).WithError(err).Error("indexing failed")
		}

		emit(Event{Type: EventError, Err: err.Error()})
	}

	emit(Event{Type: EventStatus, Message: "resolving credentials"})

	dsn, err := p.credentials.ReadOnlyDSN(ctx, connectionID)
	if err != nil {
		fail(err)
		return
	}

	emit(Event{Type: EventStatus, Message: "extracting schema"})

	source, err := p.schema(ctx, dsn, p.logger)
	if err != nil {
		fail(err)
		return
	}

	model, err := source.Extract(ctx, connectionID)
	_ = source.Close()

	if err != nil {
		fail(err)
		return
	}

	docs := document.BuildAll(model)
	emit(Event{Type: EventStatus, Message: fmt.Sprintf("building documents for %d tables", len(docs))})

	digests, err := p.idx.Digests(ctx, connectionID)
	if err != nil {
		fail(err)
		return
	}

	// Unchanged documents keep their stored vector; only new or changed
	// documents are embedded.
	var toEmbed []int

	for i, doc := range docs {
		if digest, ok := digests[doc.Table]; !ok || digest != doc.Digest {
			toEmbed = append(toEmbed, i)
		}
	}

	// A database with no tables still gets its index written, so a first
	// run is never reported as unchanged.
	if len(toEmbed) == 0 && len(docs) > 0 && len(docs) == len(digests) {
		emit(Event{Type: EventStatus, Message: "schema unchanged, index is up to date"})
		emit(Event{Type: EventDone, Message: fmt.Sprintf("indexed %d tables", len(docs))})

		return
	}

	// Stored vectors are loaded only when some tables survive unchanged.
	var storedByTable map[string]index.Entry

	if len(toEmbed) < len(docs) {
		stored, err := p.idx.Entries(ctx, connectionID)
		if err != nil {
			fail(err)
			return
		}

		storedByTable = make(map[string]index.Entry, len(stored))
		for _, entry := range stored {
			storedByTable[entry.Table] = entry
		}
	}

	vectors, err := p.embedDocuments(ctx, docs, toEmbed, func(done int) {
		emit(Event{Type: EventProgress, Progress: &Progress{Done: done, Total: len(toEmbed)}})
	})
	if err != nil {
		fail(err)
		return
	}

	entries := make([]index.Entry, len(docs))

	for i, doc := range docs {
		entry := index.Entry{
			ConnectionID: connectionID,
			Table:        doc.Table,
			Document:     doc.Text,
			Digest:       doc.Digest,
		}

		if vector, ok := vectors[i]; ok {
			entry.Vector = vector
		} else {
			entry.Vector = storedByTable[doc.Table].Vector
		}

		entries[i] = entry
	}

	emit(Event{Type: EventStatus, Message: "writing index"})

	if err := p.idx.UpsertAll(ctx, connectionID, entries); err != nil {
		fail(err)
		return
	}

	if p.logger != nil {
		p.logger.WithFields(map[string]interface{}{
			"connection": connectionID,
			"tables":     len(entries),
			"embedded":   len(toEmbed),
		}).Info("index updated")
	}

	emit(Event{Type: EventDone, Message: fmt.Sprintf("indexed %d tables", len(entries))})
}

// embedDocuments embeds the documents at the given indices in concurrent
// batches and returns vectors keyed by document position.
func (p *Pipeline) embedDocuments(
	ctx context.Context,
	docs []document.TableDocument,
	toEmbed []int,
	onProgress func(done int),
) (map[int][]float32, error) {
	vectors := make(map[int][]float32, len(toEmbed))

	var mu sync.Mutex

	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(toEmbed); start += embedBatchSize {
		end := min(start+embedBatchSize, len(toEmbed))
		batch := toEmbed[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, docIdx := range batch {
				texts[i] = docs[docIdx].Text
			}

			batchVectors, err := p.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return err
			}

			if len(batchVectors) != len(batch) {
				return errors.Newf(errors.ErrTypeEmbedding,
					"embedding count mismatch: sent %d, got %d", len(batch), len(batchVectors))
			}

			mu.Lock()
			for i, docIdx := range batch {
				vectors[docIdx] = batchVectors[i]
			}
			completed += len(batch)
			done := completed
			mu.Unlock()

			onProgress(done)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return vectors, nil
}

// AnswerQuery runs the full query pipeline: retrieve schema context,
// stream a SQL candidate, validate it, and execute it if accepted. SQL
// fragments surface as sql_chunk events while generation is in flight. A
// canceled context never reaches the executor.
func (p *Pipeline) AnswerQuery(ctx context.Context, connectionID, question string) (<-chan Event, error) {
	if connectionID == "" {
		return nil, errors.New(errors.ErrTypeInternal, "connection identifier is required")
	}

	events := make(chan Event, 64)
	requestID := uuid.New().String()

	go func() {
		defer close(events)
		p.runQuery(ctx, connectionID, question, requestID, events)
	}()

	return events, nil
}

func (p *Pipeline) runQuery(ctx context.Context, connectionID, question, requestID string, events chan<- Event) {
	emit := func(event Event) { p.emit(ctx, events, requestID, event) }
	fail := func(err error) {
		if p.logger != nil {
			p.logger.WithField("connection", connectionID).WithError(err).Error("query pipeline failed")
		}

		emit(Event{Type: EventError, Err: err.Error()})
	}

	emit(Event{Type: EventStatus, Message: "retrieving schema context"})

	retrieval, err := p.retriever.Retrieve(ctx, connectionID, question)
	if err != nil {
		fail(err)
		return
	}

	emit(Event{Type: EventStatus, Message: "generating SQL"})

	req := prompt.Compose(question, retrieval.Matches)

	out := make(chan string, 64)
	forwarded := make(chan struct{})

	go func() {
		defer close(forwarded)

		for chunk := range out {
			emit(Event{Type: EventSQLChunk, Chunk: chunk})
		}
	}()

	sql, genErr := p.generator.Run(ctx, req, out)
	close(out)
	<-forwarded

	if genErr != nil {
		fail(genErr)
		return
	}

	verdict := p.validator.Validate(sql, retrieval.TableNames())

	if !verdict.Accepted {
		emit(Event{Type: EventRejected, Verdict: &verdict, Message: verdict.Detail})
		p.recordHistory(ctx, connectionID, question, sql, verdict, nil)
		emit(Event{Type: EventDone})

		return
	}

	// Cancellation between generation and execution must keep the
	// executor untouched.
	if ctx.Err() != nil {
		fail(errors.Wrap(ctx.Err(), errors.ErrTypeGeneration, "canceled before execution"))
		return
	}

	emit(Event{Type: EventStatus, Message: "executing query"})

	dsn, err := p.credentials.ReadOnlyDSN(ctx, connectionID)
	if err != nil {
		fail(err)
		return
	}

	result, err := p.gateway.Execute(ctx, dsn, verdict)
	if err != nil {
		p.recordHistory(ctx, connectionID, question, sql, verdict, nil)
		fail(err)

		return
	}

	emit(Event{Type: EventResults, Result: result, Verdict: &verdict})
	p.recordHistory(ctx, connectionID, question, sql, verdict, result)
	emit(Event{Type: EventDone})
}

// recordHistory appends to the query log. History is best effort and
// never fails the pipeline.
func (p *Pipeline) recordHistory(
	ctx context.Context,
	connectionID, question, sql string,
	verdict guardrail.Verdict,
	result *executor.Result,
) {
	record := &index.QueryRecord{
		ConnectionID: connectionID,
		Question:     question,
		GeneratedSQL: sql,
		Accepted:     verdict.Accepted,
		RejectReason: verdict.Reason,
	}

	if result != nil {
		record.RowCount = result.RowCount
		record.ElapsedMS = result.ElapsedMS
	}

	if err := p.idx.RecordQuery(ctx, record); err != nil && p.logger != nil {
		p.logger.WithError(err).Warn("failed to record query history")
	}
}
