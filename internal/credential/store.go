// Package credential resolves connection identifiers to database DSNs.
// Generated SQL and events only ever see the identifier, never the DSN.
package credential

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/querymind/querymind/internal/errors"
)

// Provider resolves a connection identifier to a read-only DSN.
type Provider interface {
	ReadOnlyDSN(ctx context.Context, connectionID string) (string, error)
}

// FileStore keeps connection credentials in a JSON file outside the index.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the default credentials file location.
func DefaultPath(configDir string) string {
	return filepath.Join(configDir, "connections.json")
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}

		return nil, errors.Wrap(err, errors.ErrTypeCredential, "failed to read credentials file")
	}

	connections := make(map[string]string)
	if err := json.Unmarshal(data, &connections); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeCredential, "failed to parse credentials file")
	}

	return connections, nil
}

func (s *FileStore) save(connections map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrTypeCredential, "failed to create credentials directory")
	}

	data, err := json.MarshalIndent(connections, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeCredential, "failed to encode credentials")
	}

	// Credentials are secrets, keep the file private
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrTypeCredential, "failed to write credentials file")
	}

	return nil
}

// Add registers (or replaces) a connection.
func (s *FileStore) Add(connectionID, dsn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	connections, err := s.load()
	if err != nil {
		return err
	}

	connections[connectionID] = dsn

	return s.save(connections)
}

// Remove deletes a connection. Removing an unknown connection is an error
// so typos surface immediately.
func (s *FileStore) Remove(connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	connections, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := connections[connectionID]; !ok {
		return errors.Newf(errors.ErrTypeCredential, "unknown connection: %s", connectionID)
	}

	delete(connections, connectionID)

	return s.save(connections)
}

// List returns all registered connection identifiers, sorted.
func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connections, err := s.load()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(connections))
	for id := range connections {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// ReadOnlyDSN resolves a connection identifier to its DSN.
func (s *FileStore) ReadOnlyDSN(_ context.Context, connectionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connections, err := s.load()
	if err != nil {
		return "", err
	}

	dsn, ok := connections[connectionID]
	if !ok {
		return "", errors.Newf(errors.ErrTypeCredential, "unknown connection: %s", connectionID).
			WithSuggestion("Run 'querymind connections add " + connectionID + " <dsn>' first")
	}

	return dsn, nil
}
