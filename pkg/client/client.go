// Package client is the Go binding for the port registry's HTTP API.
//
// The registry is an optional convenience: callers that pass a fallback
// port keep working when the daemon is down. All transport failures are
// treated alike; only HTTP-level answers are interpreted.
package client

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// EnvRegistryURL overrides the registry base URL
	EnvRegistryURL = "PORT_REGISTRY_URL"

	// DefaultBaseURL is where the registry listens by default
	DefaultBaseURL = "http://localhost:4444"

	// DefaultTimeout keeps callers responsive when the registry is down
	DefaultTimeout = 3 * time.Second
)

// Client talks to a port registry daemon
type Client struct {
	http *resty.Client
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the registry base URL
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
	}
}

// WithTimeout overrides the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// New creates a Client. The base URL comes from the PORT_REGISTRY_URL
// environment variable when set, falling back to http://localhost:4444;
// options override both.
func New(opts ...Option) *Client {
	baseURL := os.Getenv(EnvRegistryURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(DefaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PortRequest describes the service asking for a port
type PortRequest struct {
	Service       string `json:"service"`
	Project       string `json:"project,omitempty"`
	Description   string `json:"description,omitempty"`
	PreferredPort int    `json:"preferred_port,omitempty"`

	// Fallback, when non-zero, is returned instead of an error if the
	// registry is unreachable. It is a caller-side default, never sent
	// to the registry.
	Fallback int `json:"-"`
}

// PortResponse is the registry's answer to a request
type PortResponse struct {
	Port        int    `json:"port"`
	Service     string `json:"service"`
	AssignedNow bool   `json:"assigned_now"`
	Message     string `json:"message"`
}

// CheckResponse is the registry's answer to a port availability query
type CheckResponse struct {
	Port         int     `json:"port"`
	Free         bool    `json:"free"`
	InUse        bool    `json:"in_use"`
	RegisteredTo *string `json:"registered_to"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

// GetPort requests a port for the service.
// The same service always gets the same port back while its assignment
// is active. On transport failure the Fallback port is returned when
// set, an error otherwise.
func (c *Client) GetPort(ctx context.Context, req PortRequest) (int, error) {
	var (
		out    PortResponse
		errOut errorBody
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errOut).
		Post("/ports/request")
	if err != nil {
		if req.Fallback != 0 {
			return req.Fallback, nil
		}
		return 0, fmt.Errorf("port registry unreachable at %s: %w", c.http.BaseURL, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("port request for %q rejected: %s", req.Service, errOut.Detail)
	}
	return out.Port, nil
}

// Release gives the service's port back.
// Fire-and-forget: any failure returns false, never an error, since
// callers release from shutdown paths that cannot retry.
func (c *Client) Release(ctx context.Context, service string) bool {
	var out struct {
		Released bool `json:"released"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"service": service}).
		SetResult(&out).
		Post("/ports/release")
	if err != nil || resp.IsError() {
		return false
	}
	return out.Released
}

// RegisteredPort looks up the port assigned to a service.
// Returns (0, false, nil) when the service has no active assignment.
func (c *Client) RegisteredPort(ctx context.Context, service string) (int, bool, error) {
	var out struct {
		Port int `json:"port"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/ports/" + service)
	if err != nil {
		return 0, false, fmt.Errorf("port registry unreachable at %s: %w", c.http.BaseURL, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.IsError() {
		return 0, false, fmt.Errorf("lookup for %q failed: %s", service, resp.Status())
	}
	return out.Port, true, nil
}

// CheckPort asks whether a port is free by both registry and OS criteria
func (c *Client) CheckPort(ctx context.Context, port int) (*CheckResponse, error) {
	var out CheckResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/ports/check/%d", port))
	if err != nil {
		return nil, fmt.Errorf("port registry unreachable at %s: %w", c.http.BaseURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("check for port %d failed: %s", port, resp.Status())
	}
	return &out, nil
}

// ListPorts returns the full registry snapshot keyed by service name
func (c *Client) ListPorts(ctx context.Context) (map[string]map[string]any, error) {
	var out map[string]map[string]any
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/ports")
	if err != nil {
		return nil, fmt.Errorf("port registry unreachable at %s: %w", c.http.BaseURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list failed: %s", resp.Status())
	}
	return out, nil
}
