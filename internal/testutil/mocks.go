// Package testutil provides shared mocks for pipeline components.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/querymind/querymind/internal/executor"
	"github.com/querymind/querymind/internal/guardrail"
	"github.com/querymind/querymind/internal/index"
)

// MockEmbedder implements embedding.Client with configurable vectors and
// error injection.
type MockEmbedder struct {
	mu sync.RWMutex

	dimensions  int
	queryVector []float32
	docVectors  map[string][]float32
	errors      map[string]error
	callCounts  map[string]int
}

// EmbedderOption is a functional option for configuring MockEmbedder
type EmbedderOption func(*MockEmbedder)

// WithDimensions sets the reported vector dimensionality
func WithDimensions(dimensions int) EmbedderOption {
	return func(m *MockEmbedder) {
		m.dimensions = dimensions
	}
}

// WithQueryVector sets the vector returned for every query embedding
func WithQueryVector(vector []float32) EmbedderOption {
	return func(m *MockEmbedder) {
		m.queryVector = vector
	}
}

// WithDocVector sets the vector returned for a specific document text
func WithDocVector(text string, vector []float32) EmbedderOption {
	return func(m *MockEmbedder) {
		m.docVectors[text] = vector
	}
}

// WithEmbedderError sets an error for an operation ("documents" or "query")
func WithEmbedderError(key string, err error) EmbedderOption {
	return func(m *MockEmbedder) {
		m.errors[key] = err
	}
}

// NewMockEmbedder creates a mock embedder with the given options
func NewMockEmbedder(opts ...EmbedderOption) *MockEmbedder {
	mock := &MockEmbedder{
		dimensions: 3,
		docVectors: make(map[string][]float32),
		errors:     make(map[string]error),
		callCounts: make(map[string]int),
	}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

// EmbedDocuments returns configured vectors, or a deterministic default
// derived from the text, preserving input order.
func (m *MockEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCounts["EmbedDocuments"]++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, exists := m.errors["documents"]; exists {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if vector, exists := m.docVectors[text]; exists {
			vectors[i] = vector
		} else {
			vectors[i] = m.defaultVector(text)
		}
	}

	return vectors, nil
}

// EmbedQuery returns the configured query vector or a deterministic default
func (m *MockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.callCounts["EmbedQuery"]++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, exists := m.errors["query"]; exists {
		return nil, err
	}

	if m.queryVector != nil {
		return m.queryVector, nil
	}

	return m.defaultVector(text), nil
}

// defaultVector derives a stable vector from the text content
func (m *MockEmbedder) defaultVector(text string) []float32 {
	vector := make([]float32, m.dimensions)

	var sum int
	for _, ch := range text {
		sum += int(ch)
	}

	for i := range vector {
		vector[i] = float32((sum+i)%97) / 97
	}

	return vector
}

// Dimensions returns the configured dimensionality
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// Name identifies the mock backend
func (m *MockEmbedder) Name() string {
	return "mock"
}

// CallCount returns how often the named method was invoked
func (m *MockEmbedder) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.callCounts[method]
}

// MockIndex implements the index operations the retriever and pipeline
// use, entirely in memory.
type MockIndex struct {
	mu sync.RWMutex

	entries    map[string][]index.Entry
	matches    map[string][]index.Match
	errors     map[string]error
	callCounts map[string]int
	history    []index.QueryRecord
}

// IndexOption is a functional option for configuring MockIndex
type IndexOption func(*MockIndex)

// WithEntries pre-populates stored entries for a connection
func WithEntries(connectionID string, entries []index.Entry) IndexOption {
	return func(m *MockIndex) {
		m.entries[connectionID] = entries
	}
}

// WithMatches sets the search result for a connection
func WithMatches(connectionID string, matches []index.Match) IndexOption {
	return func(m *MockIndex) {
		m.matches[connectionID] = matches
	}
}

// WithIndexError sets an error for a specific operation name
func WithIndexError(operation string, err error) IndexOption {
	return func(m *MockIndex) {
		m.errors[operation] = err
	}
}

// NewMockIndex creates a mock index with the given options
func NewMockIndex(opts ...IndexOption) *MockIndex {
	mock := &MockIndex{
		entries:    make(map[string][]index.Entry),
		matches:    make(map[string][]index.Match),
		errors:     make(map[string]error),
		callCounts: make(map[string]int),
	}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

func (m *MockIndex) count(method string) {
	m.mu.Lock()
	m.callCounts[method]++
	m.mu.Unlock()
}

// Count returns the number of stored entries for a connection
func (m *MockIndex) Count(_ context.Context, connectionID string) (int, error) {
	m.count("Count")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, exists := m.errors["Count"]; exists {
		return 0, err
	}

	return len(m.entries[connectionID]), nil
}

// Search returns the configured matches for a connection, capped at k
func (m *MockIndex) Search(_ context.Context, connectionID string, _ []float32, k int) ([]index.Match, error) {
	m.count("Search")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, exists := m.errors["Search"]; exists {
		return nil, err
	}

	matches := m.matches[connectionID]
	if len(matches) > k {
		matches = matches[:k]
	}

	return matches, nil
}

// UpsertAll replaces the stored entries of a connection
func (m *MockIndex) UpsertAll(_ context.Context, connectionID string, entries []index.Entry) error {
	m.count("UpsertAll")

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, exists := m.errors["UpsertAll"]; exists {
		return err
	}

	m.entries[connectionID] = entries

	return nil
}

// Digests returns the stored digest per table for a connection
func (m *MockIndex) Digests(_ context.Context, connectionID string) (map[string]string, error) {
	m.count("Digests")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, exists := m.errors["Digests"]; exists {
		return nil, err
	}

	digests := make(map[string]string)
	for _, entry := range m.entries[connectionID] {
		digests[entry.Table] = entry.Digest
	}

	return digests, nil
}

// Delete removes all entries of a connection
func (m *MockIndex) Delete(_ context.Context, connectionID string) error {
	m.count("Delete")

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, exists := m.errors["Delete"]; exists {
		return err
	}

	delete(m.entries, connectionID)

	return nil
}

// RecordQuery appends to the in-memory history
func (m *MockIndex) RecordQuery(_ context.Context, record *index.QueryRecord) error {
	m.count("RecordQuery")

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, exists := m.errors["RecordQuery"]; exists {
		return err
	}

	m.history = append(m.history, *record)

	return nil
}

// History returns the recorded queries
func (m *MockIndex) History() []index.QueryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]index.QueryRecord(nil), m.history...)
}

// Entries returns the stored entries for a connection
func (m *MockIndex) Entries(_ context.Context, connectionID string) ([]index.Entry, error) {
	m.count("Entries")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, exists := m.errors["Entries"]; exists {
		return nil, err
	}

	return append([]index.Entry(nil), m.entries[connectionID]...), nil
}

// StoredEntries returns the stored entries for a connection without
// going through the interface
func (m *MockIndex) StoredEntries(connectionID string) []index.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]index.Entry(nil), m.entries[connectionID]...)
}

// CallCount returns how often the named method was invoked
func (m *MockIndex) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.callCounts[method]
}

// StaticCredentials implements credential.Provider over a fixed map.
type StaticCredentials map[string]string

// ReadOnlyDSN resolves a connection identifier from the map
func (s StaticCredentials) ReadOnlyDSN(_ context.Context, connectionID string) (string, error) {
	dsn, ok := s[connectionID]
	if !ok {
		return "", fmt.Errorf("unknown connection: %s", connectionID)
	}

	return dsn, nil
}

// RecordingGateway implements executor.Gateway and records every call.
type RecordingGateway struct {
	mu sync.Mutex

	Result   *executor.Result
	Err      error
	Executed []guardrail.Verdict
}

// Execute records the verdict and returns the configured result
func (g *RecordingGateway) Execute(_ context.Context, _ string, verdict guardrail.Verdict) (*executor.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Executed = append(g.Executed, verdict)

	if g.Err != nil {
		return nil, g.Err
	}

	if g.Result != nil {
		return g.Result, nil
	}

	return &executor.Result{Columns: []string{}, Rows: nil}, nil
}

// CallCount returns how many times Execute was invoked
func (g *RecordingGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.Executed)
}
