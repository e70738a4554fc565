package allocator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-port-registry/internal/domain"
	"github.com/sirosfoundation/go-port-registry/internal/storage/memory"
)

// fakeProber simulates the OS view of port availability
type fakeProber struct {
	mu       sync.Mutex
	occupied map[int]bool
}

func newFakeProber(occupied ...int) *fakeProber {
	p := &fakeProber{occupied: make(map[int]bool)}
	for _, port := range occupied {
		p.occupied[port] = true
	}
	return p
}

func (p *fakeProber) IsFree(ctx context.Context, port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.occupied[port]
}

func (p *fakeProber) occupy(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.occupied[port] = true
}

func newTestAllocator(prober *fakeProber) (*Allocator, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	alloc := New(memory.NewStore(), prober, Config{
		RangeStart:    8002,
		RangeEnd:      8010,
		BootstrapPort: 4444,
	}, clock, zap.NewNop())
	return alloc, clock
}

func TestRequest_AssignsFirstFreePort(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())

	rec, assignedNow, err := alloc.Request(context.Background(), domain.RequestPortRequest{Service: "api"})
	require.NoError(t, err)
	assert.True(t, assignedNow)
	assert.Equal(t, 8002, rec.Port)
	assert.Equal(t, domain.StatusActive, rec.Status)
}

func TestRequest_IdempotentRepeat(t *testing.T) {
	alloc, clock := newTestAllocator(newFakeProber())
	ctx := context.Background()

	first, assignedNow, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "api"})
	require.NoError(t, err)
	require.True(t, assignedNow)

	clock.Advance(time.Minute)

	second, assignedNow, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "api"})
	require.NoError(t, err)
	assert.False(t, assignedNow)
	assert.Equal(t, first.Port, second.Port)
	assert.True(t, second.LastSeen.After(first.LastSeen))
}

func TestRequest_PreferredHonoredWhenFree(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())

	rec, assignedNow, err := alloc.Request(context.Background(), domain.RequestPortRequest{
		Service:       "api",
		PreferredPort: 8007,
	})
	require.NoError(t, err)
	assert.True(t, assignedNow)
	assert.Equal(t, 8007, rec.Port)
}

func TestRequest_PreferredOutsideRangeHonored(t *testing.T) {
	// A preference is not restricted to the managed range
	alloc, _ := newTestAllocator(newFakeProber())

	rec, _, err := alloc.Request(context.Background(), domain.RequestPortRequest{
		Service:       "api",
		PreferredPort: 12345,
	})
	require.NoError(t, err)
	assert.Equal(t, 12345, rec.Port)
}

func TestRequest_PreferredTakenByStoreFallsBack(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())
	ctx := context.Background()

	holder, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "holder", PreferredPort: 8005})
	require.NoError(t, err)
	require.Equal(t, 8005, holder.Port)

	// The conflict is silent: a valid different port, not an error
	rec, assignedNow, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "api", PreferredPort: 8005})
	require.NoError(t, err)
	assert.True(t, assignedNow)
	assert.NotEqual(t, 8005, rec.Port)
	assert.Equal(t, 8002, rec.Port)
}

func TestRequest_PreferredOccupiedOnHostFallsBack(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber(8005))

	rec, _, err := alloc.Request(context.Background(), domain.RequestPortRequest{Service: "api", PreferredPort: 8005})
	require.NoError(t, err)
	assert.NotEqual(t, 8005, rec.Port)
}

func TestRequest_ScanSkipsOccupiedPorts(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber(8002, 8003))

	rec, _, err := alloc.Request(context.Background(), domain.RequestPortRequest{Service: "api"})
	require.NoError(t, err)
	assert.Equal(t, 8004, rec.Port)
}

func TestRequest_ScanSkipsBootstrapPort(t *testing.T) {
	clock := clockwork.NewFakeClock()
	alloc := New(memory.NewStore(), newFakeProber(), Config{
		RangeStart:    4443,
		RangeEnd:      4446,
		BootstrapPort: 4444,
	}, clock, zap.NewNop())
	ctx := context.Background()

	first, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "a"})
	require.NoError(t, err)
	assert.Equal(t, 4443, first.Port)

	// 4444 is the registry's own port and is never handed out
	second, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "b"})
	require.NoError(t, err)
	assert.Equal(t, 4445, second.Port)
}

func TestRequest_PreferredBootstrapPortIgnored(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())

	rec, _, err := alloc.Request(context.Background(), domain.RequestPortRequest{Service: "api", PreferredPort: 4444})
	require.NoError(t, err)
	assert.Equal(t, 8002, rec.Port)
}

func TestRequest_Exhausted(t *testing.T) {
	prober := newFakeProber()
	for port := 8002; port <= 8010; port++ {
		prober.occupy(port)
	}
	alloc, _ := newTestAllocator(prober)
	ctx := context.Background()

	_, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "api"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)

	// No record was created
	_, err = alloc.Lookup(ctx, "api")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequest_InvalidInput(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())
	ctx := context.Background()

	_, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: ""})
	assert.ErrorIs(t, err, ErrInvalidService)

	_, _, err = alloc.Request(ctx, domain.RequestPortRequest{Service: "api", PreferredPort: 70000})
	assert.ErrorIs(t, err, ErrInvalidPort)

	_, _, err = alloc.Request(ctx, domain.RequestPortRequest{Service: "api", PreferredPort: -1})
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestRelease_FreesPortForReuse(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())
	ctx := context.Background()

	a, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "a"})
	require.NoError(t, err)

	rec, released, err := alloc.Release(ctx, "a")
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, a.Port, rec.Port)

	// A different service may now take the released port as preference
	b, assignedNow, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "b", PreferredPort: a.Port})
	require.NoError(t, err)
	assert.True(t, assignedNow)
	assert.Equal(t, a.Port, b.Port)
}

func TestRelease_Idempotent(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())
	ctx := context.Background()

	_, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "a"})
	require.NoError(t, err)

	_, released, err := alloc.Release(ctx, "a")
	require.NoError(t, err)
	assert.True(t, released)

	// Second release and unknown service are not errors
	_, released, err = alloc.Release(ctx, "a")
	require.NoError(t, err)
	assert.False(t, released)

	_, released, err = alloc.Release(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestRequest_ReleasedServiceGetsFreshAssignment(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())
	ctx := context.Background()

	first, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "a"})
	require.NoError(t, err)

	_, _, err = alloc.Release(ctx, "a")
	require.NoError(t, err)

	again, assignedNow, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "a"})
	require.NoError(t, err)
	assert.True(t, assignedNow)
	assert.NotEqual(t, first.ID, again.ID)
}

func TestCheck(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber(9000))
	ctx := context.Background()

	rec, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "api"})
	require.NoError(t, err)

	// Registry-held port: not free, owner reported
	result, err := alloc.Check(ctx, rec.Port)
	require.NoError(t, err)
	assert.False(t, result.Free)
	assert.Equal(t, "api", result.RegisteredTo)

	// OS-occupied, unregistered port
	result, err = alloc.Check(ctx, 9000)
	require.NoError(t, err)
	assert.False(t, result.Free)
	assert.True(t, result.InUse)
	assert.Empty(t, result.RegisteredTo)

	// Free by both criteria
	result, err = alloc.Check(ctx, 9001)
	require.NoError(t, err)
	assert.True(t, result.Free)
	assert.Empty(t, result.RegisteredTo)

	_, err = alloc.Check(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestLookup(t *testing.T) {
	alloc, _ := newTestAllocator(newFakeProber())
	ctx := context.Background()

	_, err := alloc.Lookup(ctx, "api")
	assert.ErrorIs(t, err, ErrNotFound)

	rec, _, err := alloc.Request(ctx, domain.RequestPortRequest{Service: "api"})
	require.NoError(t, err)

	found, err := alloc.Lookup(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, rec.Port, found.Port)

	// Released services are no longer found
	_, _, err = alloc.Release(ctx, "api")
	require.NoError(t, err)
	_, err = alloc.Lookup(ctx, "api")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequest_ConcurrentDistinctServices(t *testing.T) {
	const n = 8
	clock := clockwork.NewFakeClock()
	alloc := New(memory.NewStore(), newFakeProber(), Config{
		RangeStart:    8002,
		RangeEnd:      8002 + n,
		BootstrapPort: 4444,
	}, clock, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _, err := alloc.Request(ctx, domain.RequestPortRequest{
				Service: fmt.Sprintf("svc-%d", i),
			})
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = rec.Port
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i]], "port %d assigned twice", results[i])
		seen[results[i]] = true
	}

	snapshot, err := alloc.Snapshot(ctx)
	require.NoError(t, err)
	active := 0
	for _, s := range snapshot {
		if s.IsActive() {
			active++
		}
	}
	assert.Equal(t, n, active)
}
