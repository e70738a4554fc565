// Package probe answers the one question the store cannot: is a port
// actually free at the operating-system level right now? It binds a
// transient TCP listener and releases it immediately. This catches ports
// held by processes that never talked to the registry.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds a single bind attempt. A probe that does not
// complete in time counts as occupied, so a misbehaving network stack
// can never hang an allocation scan.
const DefaultTimeout = 300 * time.Millisecond

// Prober reports OS-level port availability
type Prober interface {
	// IsFree returns true only when a transient bind on the port
	// succeeded within the probe timeout.
	IsFree(ctx context.Context, port int) bool
}

// TCPProber probes by binding a TCP listener on all interfaces.
//
// Binding to ":port" rather than "127.0.0.1:port" matches what most
// servers do when they listen, so the probe sees the same address space
// as the processes it is guarding against.
type TCPProber struct {
	timeout time.Duration
}

// NewTCPProber creates a prober with the given per-probe timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPProber{timeout: timeout}
}

// IsFree attempts a transient bind on the port.
// The bind runs in its own goroutine raced against the timeout and the
// caller's context; on timeout the port is assumed occupied (fail safe)
// and the stray listener, if the bind eventually succeeds, is closed by
// the goroutine itself.
func (p *TCPProber) IsFree(ctx context.Context, port int) bool {
	if port < 1 || port > 65535 {
		return false
	}

	type result struct {
		ln  net.Listener
		err error
	}
	done := make(chan result, 1)

	go func() {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		done <- result{ln: ln, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return false
		}
		_ = r.ln.Close()
		return true
	case <-timer.C:
	case <-ctx.Done():
	}

	// Timed out or cancelled. Drain the bind result in the background so
	// a late listener does not stay bound.
	go func() {
		r := <-done
		if r.ln != nil {
			_ = r.ln.Close()
		}
	}()
	return false
}
