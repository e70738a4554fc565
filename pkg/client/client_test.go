package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL))
}

func TestGetPort(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ports/request", r.URL.Path)

		var req PortRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "api", req.Service)
		assert.Equal(t, "demo", req.Project)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PortResponse{Port: 8002, Service: "api", AssignedNow: true})
	})

	port, err := c.GetPort(context.Background(), PortRequest{Service: "api", Project: "demo"})
	require.NoError(t, err)
	assert.Equal(t, 8002, port)
}

func TestGetPort_ServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"no free port in managed range"}`))
	})

	_, err := c.GetPort(context.Background(), PortRequest{Service: "api"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no free port")
}

func TestGetPort_UnreachableWithFallback(t *testing.T) {
	// Nothing listens on this address
	c := New(WithBaseURL("http://127.0.0.1:1"))

	port, err := c.GetPort(context.Background(), PortRequest{Service: "api", Fallback: 9090})
	require.NoError(t, err)
	assert.Equal(t, 9090, port)
}

func TestGetPort_UnreachableWithoutFallback(t *testing.T) {
	c := New(WithBaseURL("http://127.0.0.1:1"))

	_, err := c.GetPort(context.Background(), PortRequest{Service: "api"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestRelease(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ports/release", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"released":true,"service":"api","port":8002}`))
	})

	assert.True(t, c.Release(context.Background(), "api"))
}

func TestRelease_SwallowsFailures(t *testing.T) {
	c := New(WithBaseURL("http://127.0.0.1:1"))
	assert.False(t, c.Release(context.Background(), "api"))
}

func TestRegisteredPort(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/ports/api":
			_, _ = w.Write([]byte(`{"service":"api","port":8002}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"not registered"}`))
		}
	})

	port, found, err := c.RegisteredPort(context.Background(), "api")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 8002, port)

	_, found, err = c.RegisteredPort(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCheckPort(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ports/check/8002", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"port":8002,"free":false,"in_use":false,"registered_to":"api"}`))
	})

	result, err := c.CheckPort(context.Background(), 8002)
	require.NoError(t, err)
	assert.False(t, result.Free)
	require.NotNil(t, result.RegisteredTo)
	assert.Equal(t, "api", *result.RegisteredTo)
}

func TestNew_EnvBaseURL(t *testing.T) {
	t.Setenv(EnvRegistryURL, "http://example.invalid:4545")
	c := New()
	assert.Equal(t, "http://example.invalid:4545", c.http.BaseURL)
}
