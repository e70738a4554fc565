package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-port-registry/internal/allocator"
	"github.com/sirosfoundation/go-port-registry/internal/api"
	"github.com/sirosfoundation/go-port-registry/internal/probe"
	"github.com/sirosfoundation/go-port-registry/internal/storage/file"
)

// TestHarness runs a complete registry over a real state file and a real
// TCP prober, behind an httptest server.
type TestHarness struct {
	T         *testing.T
	Server    *httptest.Server
	Store     *file.Store
	StatePath string
	BaseURL   string
}

// HarnessConfig controls the registry under test
type HarnessConfig struct {
	StatePath  string
	RangeStart int
	RangeEnd   int
}

// NewTestHarness starts a registry. A reused StatePath simulates a
// daemon restart over existing state.
func NewTestHarness(t *testing.T, cfg HarnessConfig) *TestHarness {
	t.Helper()

	gin.SetMode(gin.TestMode)

	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(t.TempDir(), "registry.json")
	}
	if cfg.RangeStart == 0 {
		// High range to stay clear of anything else on the test host
		cfg.RangeStart = 28002
		cfg.RangeEnd = 28099
	}

	store := file.NewStore(cfg.StatePath)
	if err := store.Load(); err != nil {
		t.Fatalf("failed to load state file: %v", err)
	}

	alloc := allocator.New(store, probe.NewTCPProber(0), allocator.Config{
		RangeStart:    cfg.RangeStart,
		RangeEnd:      cfg.RangeEnd,
		BootstrapPort: 4444,
	}, clockwork.NewRealClock(), zap.NewNop())

	router := gin.New()
	api.NewHandler(alloc, 4444, zap.NewNop()).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestHarness{
		T:         t,
		Server:    srv,
		Store:     store,
		StatePath: cfg.StatePath,
		BaseURL:   srv.URL,
	}
}

// Restart simulates killing the daemon and starting a fresh process over
// the same state file.
func (h *TestHarness) Restart() *TestHarness {
	h.Server.Close()
	return NewTestHarness(h.T, HarnessConfig{StatePath: h.StatePath})
}

// Post sends a JSON POST and decodes the JSON response
func (h *TestHarness) Post(path string, body any) (int, map[string]any) {
	h.T.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		h.T.Fatalf("failed to marshal body: %v", err)
	}
	resp, err := http.Post(h.BaseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		h.T.Fatalf("POST %s failed: %v", path, err)
	}
	return h.decode(resp)
}

// Get sends a GET and decodes the JSON response
func (h *TestHarness) Get(path string) (int, map[string]any) {
	h.T.Helper()

	resp, err := http.Get(h.BaseURL + path)
	if err != nil {
		h.T.Fatalf("GET %s failed: %v", path, err)
	}
	return h.decode(resp)
}

func (h *TestHarness) decode(resp *http.Response) (int, map[string]any) {
	h.T.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.T.Fatalf("failed to read response: %v", err)
	}
	var parsed map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			h.T.Fatalf("failed to parse response %q: %v", data, err)
		}
	}
	return resp.StatusCode, parsed
}
