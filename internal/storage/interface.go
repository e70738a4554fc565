// Package storage defines the port store contract and its shared errors.
// Implementations live in subpackages: file (durable, production) and
// memory (ephemeral, tests).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sirosfoundation/go-port-registry/internal/domain"
)

// Common errors
var (
	// ErrNotFound is returned when no record exists for a service
	ErrNotFound = errors.New("not found")
	// ErrCorrupt is returned by Load when a present state file cannot be
	// parsed. This is fatal at startup: refusing to start is preferable
	// to silently discarding assignment history.
	ErrCorrupt = errors.New("state file corrupt")
)

// Store defines the interface for assignment storage.
//
// Get, ActivePorts and List serve read paths and must always observe a
// fully persisted state. Upsert and Release mutate in memory only; the
// caller decides when to Persist. The allocator serializes every
// mutate+persist sequence, so implementations only need to be safe for
// concurrent readers.
type Store interface {
	// Get retrieves the record for a service, whatever its status
	Get(ctx context.Context, service string) (*domain.Assignment, error)

	// Upsert inserts or replaces the record keyed by its service name
	Upsert(ctx context.Context, a *domain.Assignment) error

	// Release marks the service's record as released.
	// Returns ErrNotFound when no active record exists.
	Release(ctx context.Context, service string, releasedAt time.Time) error

	// ActivePorts returns the set of ports held by active records
	ActivePorts(ctx context.Context) (map[int]string, error)

	// List returns all records, active and released
	List(ctx context.Context) ([]*domain.Assignment, error)

	// Load reads persisted state. An absent or empty file is a fresh
	// install; a malformed file returns ErrCorrupt.
	Load() error

	// Persist durably writes the full state. The write must be atomic
	// at the filesystem level so concurrent readers and crashes never
	// observe a partial file.
	Persist() error

	// Close releases any underlying resources
	Close() error
}
