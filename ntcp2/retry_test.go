package ntcp2

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeWithRetryNoRetriesBehavesLikeHandshake(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig().WithHandshakeTimeout(50*time.Millisecond), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	err = s.HandshakeWithRetry(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUninitialized, s.State(), "a timeout/cancellation is non-fatal and resets rather than terminates")
}

func TestShouldRetryHandshakeRespectsMaxRetries(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	assert.True(t, s.shouldRetryHandshake(0, 3))
	assert.True(t, s.shouldRetryHandshake(2, 3))
	assert.False(t, s.shouldRetryHandshake(3, 3))
	assert.True(t, s.shouldRetryHandshake(1000, -1))
}

func TestShouldRetryHandshakeStopsOnceNonUninitialized(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	s.state.setDataPhase()
	assert.False(t, s.shouldRetryHandshake(0, -1))
}

func TestWaitForRetryHonorsContextCancellation(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig().WithRetryBackoff(time.Hour), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.waitForRetry(ctx, 0)
	require.Error(t, err)
	assert.Equal(t, CodeCancelled, Code(err))
}

func TestFailHandshakeResetsOnNonFatalError(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	s.state.setHandshakePhase(0)
	s.failHandshake(errCancelled("ntcp2", "timed out"))
	assert.Equal(t, StateUninitialized, s.State())
}

func TestFailHandshakeTerminatesOnFatalError(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	s.state.setHandshakePhase(0)
	s.failHandshake(errIdentityMismatch("ntcp2", "mismatch"))
	assert.Equal(t, StateTerminating, s.State())
}
