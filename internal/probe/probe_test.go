package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listenAnyPort grabs an OS-assigned port and returns the listener plus
// its port number.
func listenAnyPort(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestIsFree_OccupiedPort(t *testing.T) {
	ln, port := listenAnyPort(t)
	defer ln.Close()

	p := NewTCPProber(0)
	assert.False(t, p.IsFree(context.Background(), port))
}

func TestIsFree_FreePort(t *testing.T) {
	// Grab a port, then close it so it's free again by the time we probe
	ln, port := listenAnyPort(t)
	require.NoError(t, ln.Close())

	p := NewTCPProber(time.Second)
	assert.True(t, p.IsFree(context.Background(), port))
}

func TestIsFree_ReleasesProbeListener(t *testing.T) {
	ln, port := listenAnyPort(t)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := NewTCPProber(time.Second)
	require.True(t, p.IsFree(context.Background(), port))

	// The probe's own transient listener must not keep the port bound
	relisten, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	assert.NoError(t, relisten.Close())
}

func TestIsFree_InvalidPort(t *testing.T) {
	p := NewTCPProber(0)
	assert.False(t, p.IsFree(context.Background(), 0))
	assert.False(t, p.IsFree(context.Background(), -1))
	assert.False(t, p.IsFree(context.Background(), 70000))
}

func TestIsFree_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context counts as occupied (fail safe)
	p := NewTCPProber(time.Minute)
	assert.False(t, p.IsFree(ctx, 1))
}
