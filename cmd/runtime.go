package cmd

import (
	"context"
	"time"

	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/credential"
	"github.com/querymind/querymind/internal/embedding"
	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/executor"
	"github.com/querymind/querymind/internal/generate"
	"github.com/querymind/querymind/internal/index"
	"github.com/querymind/querymind/internal/logging"
	"github.com/querymind/querymind/internal/pipeline"
)

// openStore opens and migrates the schema index database
func openStore(ctx context.Context, cfg *config.Config) (*index.Store, error) {
	store, err := index.NewStore(cfg.Index)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open schema index")
	}

	if err := store.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to migrate schema index")
	}

	return store, nil
}

// openCredentials returns the connection credential store
func openCredentials() *credential.FileStore {
	return credential.NewFileStore(credential.DefaultPath(config.GetConfigDir()))
}

// requestTimeout parses a duration already checked during config
// validation. Zero disables the deadline.
func requestTimeout(value string) time.Duration {
	timeout, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}

	return timeout
}

// buildIndexPipeline wires the components needed for indexing runs
func buildIndexPipeline(ctx context.Context, cfg *config.Config, store *index.Store) (*pipeline.Pipeline, error) {
	logger := logging.GetLogger()

	embedder, err := embedding.NewGenAIClient(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Embedder:    embedding.WithTimeout(embedder, requestTimeout(cfg.Embedding.Timeout)),
		Index:       store,
		Credentials: openCredentials(),
		TopK:        cfg.Retrieval.TopK,
		Logger:      logger,
	}), nil
}

// buildQueryPipeline wires the full answer pipeline including generation
// and execution
func buildQueryPipeline(ctx context.Context, cfg *config.Config, store *index.Store) (*pipeline.Pipeline, error) {
	logger := logging.GetLogger()

	embedder, err := embedding.NewGenAIClient(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}

	backend, err := generate.NewGenAIBackend(ctx, cfg.Generation)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Embedder:     embedding.WithTimeout(embedder, requestTimeout(cfg.Embedding.Timeout)),
		Index:        store,
		Credentials:  openCredentials(),
		Backend:      generate.WithTimeout(backend, requestTimeout(cfg.Generation.Timeout)),
		Gateway:      executor.NewPostgresGateway(cfg.Policy, logger),
		TopK:         cfg.Retrieval.TopK,
		EnforceScope: cfg.Policy.EnforceScope,
		Logger:       logger,
	}), nil
}
