// Package index stores embedded schema documents in a local DuckDB file
// and answers nearest-neighbor searches over them.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/errors"
)

// Entry is one indexed schema document with its vector.
type Entry struct {
	ConnectionID string
	Table        string
	Document     string
	Digest       string
	Vector       []float32
}

// Match is one retrieval hit, best first.
type Match struct {
	Table    string  `json:"table"`
	Score    float64 `json:"score"`
	Document string  `json:"document"`
}

// Store is a DuckDB-backed vector index
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the index database at the configured path
func NewStore(cfg config.IndexConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to create index directory")
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open index database")
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
		db.SetConnMaxLifetime(lifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to ping index database")
	}

	return &Store{db: db, path: cfg.Path}, nil
}

// Initialize applies pending schema migrations
func (s *Store) Initialize(ctx context.Context) error {
	return NewMigrationManager(s.db).MigrateUp(ctx)
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertAll atomically replaces every entry of a connection with the given
// set. Readers either see the complete old index or the complete new one,
// never a mix.
func (s *Store) UpsertAll(ctx context.Context, connectionID string, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM schema_vectors WHERE connection_id = ?", connectionID); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to clear previous index entries")
	}

	insertSQL := `
		INSERT INTO schema_vectors (connection_id, table_name, document, digest, vector)
		VALUES (?, ?, ?, ?, ?)`

	for _, entry := range entries {
		vectorJSON, err := json.Marshal(entry.Vector)
		if err != nil {
			return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to encode vector for %s", entry.Table)
		}

		if _, err := tx.ExecContext(ctx, insertSQL,
			connectionID, entry.Table, entry.Document, entry.Digest, string(vectorJSON)); err != nil {
			return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to insert entry for %s", entry.Table)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to commit index swap")
	}

	return nil
}

// Digests returns the stored table-to-digest mapping of a connection.
// Re-indexing uses it to skip the embedding step when nothing changed.
func (s *Store) Digests(ctx context.Context, connectionID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT table_name, digest FROM schema_vectors WHERE connection_id = ?", connectionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to query digests")
	}

	defer rows.Close()

	digests := make(map[string]string)

	for rows.Next() {
		var table, digest string
		if err := rows.Scan(&table, &digest); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan digest row")
		}

		digests[table] = digest
	}

	return digests, rows.Err()
}

// Entries returns every stored entry of a connection, vectors included.
// Re-indexing uses it to carry forward vectors of unchanged tables.
func (s *Store) Entries(ctx context.Context, connectionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT table_name, document, digest, vector FROM schema_vectors WHERE connection_id = ?",
		connectionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to query index entries")
	}

	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		entry := Entry{ConnectionID: connectionID}

		var vectorJSON string
		if err := rows.Scan(&entry.Table, &entry.Document, &entry.Digest, &vectorJSON); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan index entry")
		}

		if err := json.Unmarshal([]byte(vectorJSON), &entry.Vector); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIndexCorruption,
				"stored vector for %s is not valid JSON", entry.Table)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Search returns the k entries of a connection most similar to the query
// vector, best first. An empty index yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, connectionID string, vector []float32, k int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT table_name, document, vector FROM schema_vectors WHERE connection_id = ?",
		connectionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to query index entries")
	}

	defer rows.Close()

	var matches []Match

	for rows.Next() {
		var table, document, vectorJSON string
		if err := rows.Scan(&table, &document, &vectorJSON); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan index entry")
		}

		var stored []float32
		if err := json.Unmarshal([]byte(vectorJSON), &stored); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIndexCorruption,
				"stored vector for %s is not valid JSON", table)
		}

		score, err := cosineSimilarity(vector, stored)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIndexCorruption,
				"stored vector for %s has wrong dimensionality", table)
		}

		matches = append(matches, Match{Table: table, Score: score, Document: document})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to iterate index entries")
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}

		return matches[i].Table < matches[j].Table
	})

	if len(matches) > k {
		matches = matches[:k]
	}

	return matches, nil
}

// Delete removes every entry of a connection. Deleting a connection that
// was never indexed is not an error.
func (s *Store) Delete(ctx context.Context, connectionID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM schema_vectors WHERE connection_id = ?", connectionID)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to delete index entries")
	}

	return nil
}

// Count returns the number of indexed tables for a connection
func (s *Store) Count(ctx context.Context, connectionID string) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_vectors WHERE connection_id = ?", connectionID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrTypeDatabase, "failed to count index entries")
	}

	return count, nil
}
