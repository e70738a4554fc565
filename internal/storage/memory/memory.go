// Package memory implements an in-memory assignment store. It backs unit
// tests and ephemeral runs where durability is not wanted.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirosfoundation/go-port-registry/internal/domain"
	"github.com/sirosfoundation/go-port-registry/internal/storage"
)

// Store implements storage.Store without persistence. Load and Persist
// are no-ops.
type Store struct {
	mu       sync.RWMutex
	services map[string]*domain.Assignment
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{services: make(map[string]*domain.Assignment)}
}

func (s *Store) Get(ctx context.Context, service string) (*domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.services[service]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) Upsert(ctx context.Context, a *domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.services[a.Service] = a.Clone()
	return nil
}

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

func (s *Store) Load() error    { return nil }
func (s *Store) Persist() error { return nil }
func (s *Store) Close() error   { return nil }
