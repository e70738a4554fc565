// Package file implements the durable, production port store: the full
// set of assignment records serialized as a single JSON file, replaced
// atomically on every persist.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirosfoundation/go-port-registry/internal/domain"
	"github.com/sirosfoundation/go-port-registry/internal/storage"
)

// stateVersion is the on-disk format version. Bump on incompatible changes.
const stateVersion = "1"

// stateFile is the on-disk envelope. The version field makes the file
// self-describing, so an unrecognized or unparsable file is detected as
// corruption rather than treated as empty state.
type stateFile struct {
	Version   string                        `json:"version"`
	UpdatedAt time.Time                     `json:"updated_at"`
	Services  map[string]*domain.Assignment `json:"services"`
}

// Store is a file-backed assignment store
type Store struct {
	mu       sync.RWMutex
	services map[string]*domain.Assignment
	path     string
}

// NewStore creates a store persisting to the given path. Call Load before
// first use.
func NewStore(path string) *Store {
	return &Store{
		services: make(map[string]*domain.Assignment),
		path:     path,
	}
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file into memory.
// An absent or empty file is a fresh install. A present but malformed
// file returns storage.ErrCorrupt so the daemon can refuse to start.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, s.path, err)
	}
	if state.Version != stateVersion {
		return fmt.Errorf("%w: %s: unsupported version %q", storage.ErrCorrupt, s.path, state.Version)
	}

	s.services = state.Services
	if s.services == nil {
		s.services = make(map[string]*domain.Assignment)
	}
	return nil
}

// Persist writes the full state to disk.
// The write goes to a temp file in the same directory followed by a
// rename, so a crash mid-write never corrupts the previous state and
// concurrent readers never observe a partial file.
func (s *Store) Persist() error {
	s.mu.RLock()
	state := stateFile{
		Version:   stateVersion,
		UpdatedAt: time.Now().UTC(),
		Services:  s.services,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Get retrieves the record for a service, whatever its status
func (s *Store) Get(ctx context.Context, service string) (*domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.services[service]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}

// Upsert inserts or replaces the record keyed by its service name
func (s *Store) Upsert(ctx context.Context, a *domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.services[a.Service] = a.Clone()
	return nil
}

// Release marks the service's record as released
func (s *Store) Release(ctx context.Context, service string, releasedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.services[service]
	if !ok || !a.IsActive() {
		return storage.ErrNotFound
	}
	a.MarkReleased(releasedAt)
	return nil
}

// ActivePorts returns ports held by active records, keyed to their owner
func (s *Store) ActivePorts(ctx context.Context) (map[int]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ports := make(map[int]string, len(s.services))
	for _, a := range s.services {
		if a.IsActive() {
			ports[a.Port] = a.Service
		}
	}
	return ports, nil
}

// List returns all records sorted by service name
func (s *Store) List(ctx context.Context) ([]*domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Assignment, 0, len(s.services))
	for _, a := range s.services {
		result = append(result, a.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Service < result[j].Service })
	return result, nil
}

// Close is a no-op for the file store
func (s *Store) Close() error {
	return nil
}
