// Package allocator decides which port a service gets. It consults two
// independent sources of truth: the store (authoritative for ports the
// registry handed out) and the OS prober (authoritative for everything
// else running on the host). Trusting either alone would allow either
// double-booking by the registry or silent collision with an
// unregistered process.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-port-registry/internal/domain"
	"github.com/sirosfoundation/go-port-registry/internal/probe"
	"github.com/sirosfoundation/go-port-registry/internal/storage"
)

// Errors surfaced to the API layer
var (
	// ErrInvalidService is returned for an empty service name
	ErrInvalidService = errors.New("service name must not be empty")
	// ErrInvalidPort is returned for a port outside 1-65535
	ErrInvalidPort = errors.New("port out of range")
	// ErrExhausted is returned when the managed range holds no free port
	ErrExhausted = errors.New("no free port in managed range")
	// ErrNotFound is returned by Lookup when a service has no active record
	ErrNotFound = errors.New("service not registered")
)

// Config holds the managed range and the registry's own port
type Config struct {
	// RangeStart and RangeEnd bound the ports scanned when no usable
	// preference was given (inclusive).
	RangeStart int
	RangeEnd   int
	// BootstrapPort is the registry's own listen port, never handed out
	BootstrapPort int
}

// CheckResult is the answer to a port availability query
type CheckResult struct {
	Port int
	// Free is true only when the port has no active record AND the
	// prober saw it unbound.
	Free bool
	// RegisteredTo names the owning service when the registry holds the
	// port, regardless of what the prober saw. The registry's own record
	// takes precedence when reporting ownership.
	RegisteredTo string
	// InUse is the raw prober verdict
	InUse bool
}

// ServiceState is one entry of a registry snapshot
type ServiceState struct {
	*domain.Assignment
	// InUse reports whether something is currently bound on the port
	InUse bool
}

// Allocator owns all assignment decisions.
//
// The mutex is the request serializer: every mutating sequence
// (lookup, probe, write, persist) runs under it, so two concurrent
// requests can never both pass the availability check for the same
// candidate port, and the state file is never written from two
// operations at once. Read paths go straight to the store, which keeps
// its own snapshot consistency.
type Allocator struct {
	mu     sync.Mutex
	store  storage.Store
	prober probe.Prober
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger
}

// New creates an Allocator
func New(store storage.Store, prober probe.Prober, cfg Config, clock clockwork.Clock, logger *zap.Logger) *Allocator {
	return &Allocator{
		store:  store,
		prober: prober,
		cfg:    cfg,
		clock:  clock,
		logger: logger.Named("allocator"),
	}
}

// Request resolves a port for the service, assigning one if needed.
//
// Known active services get their existing port back (sticky) with
// assignedNow=false. Otherwise the preferred port is honored when it is
// neither registry-held nor OS-occupied; an unusable preference falls
// back silently to the range scan. The caller can detect the fallback
// by comparing the returned port against its preference.
func (a *Allocator) Request(ctx context.Context, req domain.RequestPortRequest) (*domain.Assignment, bool, error) {
	if req.Service == "" {
		return nil, false, ErrInvalidService
	}
	if req.PreferredPort != 0 && (req.PreferredPort < 1 || req.PreferredPort > 65535) {
		return nil, false, fmt.Errorf("%w: %d", ErrInvalidPort, req.PreferredPort)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now().UTC()

	existing, err := a.store.Get(ctx, req.Service)
	if err == nil && existing.IsActive() {
		existing.Touch(now)
		if err := a.store.Upsert(ctx, existing); err != nil {
			return nil, false, err
		}
		if err := a.store.Persist(); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	active, err := a.store.ActivePorts(ctx)
	if err != nil {
		return nil, false, err
	}

	port, err := a.pickPort(ctx, req.PreferredPort, active)
	if err != nil {
		return nil, false, err
	}

	assignment := domain.NewAssignment(req.Service, req.Project, req.Description, port, now)
	if err := a.store.Upsert(ctx, assignment); err != nil {
		return nil, false, err
	}
	if err := a.store.Persist(); err != nil {
		return nil, false, err
	}

	a.logger.Info("assigned port",
		zap.String("service", req.Service),
		zap.Int("port", port),
		zap.Bool("preferred_honored", req.PreferredPort != 0 && port == req.PreferredPort))
	return assignment, true, nil
}

// pickPort chooses a candidate. Caller holds the serializer lock.
func (a *Allocator) pickPort(ctx context.Context, preferred int, active map[int]string) (int, error) {
	if preferred != 0 && preferred != a.cfg.BootstrapPort {
		if _, held := active[preferred]; !held && a.prober.IsFree(ctx, preferred) {
			return preferred, nil
		}
		a.logger.Debug("preferred port unavailable, scanning range", zap.Int("preferred", preferred))
	}

	for port := a.cfg.RangeStart; port <= a.cfg.RangeEnd; port++ {
		if port == a.cfg.BootstrapPort {
			continue
		}
		if _, held := active[port]; held {
			continue
		}
		// The prober call is the only slow step of the scan; each
		// attempt is individually bounded, and a timed-out probe just
		// moves the scan to the next candidate.
		if a.prober.IsFree(ctx, port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w (%d-%d)", ErrExhausted, a.cfg.RangeStart, a.cfg.RangeEnd)
}

// Release gives the service's port back.
// Idempotent from the caller's perspective: releasing an unknown or
// already-released service returns released=false, not an error, since
// shutdown hooks fire zero or many times.
func (a *Allocator) Release(ctx context.Context, service string) (*domain.Assignment, bool, error) {
	if service == "" {
		return nil, false, ErrInvalidService
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.Release(ctx, service, a.clock.Now().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := a.store.Persist(); err != nil {
		return nil, false, err
	}

	released, err := a.store.Get(ctx, service)
	if err != nil {
		return nil, false, err
	}
	a.logger.Info("released port", zap.String("service", service), zap.Int("port", released.Port))
	return released, true, nil
}

// Lookup returns the active record for a service
func (a *Allocator) Lookup(ctx context.Context, service string) (*domain.Assignment, error) {
	rec, err := a.store.Get(ctx, service)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !rec.IsActive() {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Check combines the two availability predicates for one port
func (a *Allocator) Check(ctx context.Context, port int) (CheckResult, error) {
	if port < 1 || port > 65535 {
		return CheckResult{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	active, err := a.store.ActivePorts(ctx)
	if err != nil {
		return CheckResult{}, err
	}

	owner := active[port]
	inUse := !a.prober.IsFree(ctx, port)
	return CheckResult{
		Port:         port,
		Free:         owner == "" && !inUse,
		RegisteredTo: owner,
		InUse:        inUse,
	}, nil
}

// Snapshot lists every record with a live in-use probe per port
func (a *Allocator) Snapshot(ctx context.Context) ([]ServiceState, error) {
	records, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]ServiceState, 0, len(records))
	for _, rec := range records {
		states = append(states, ServiceState{
			Assignment: rec,
			InUse:      !a.prober.IsFree(ctx, rec.Port),
		})
	}
	return states, nil
}
