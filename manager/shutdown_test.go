package manager

import (
	"net"
	"testing"
	"time"

	"github.com/go-i2p/ntcp2/ntcp2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManagerClosesRegisteredListeners(t *testing.T) {
	owner := newRouterFixture(t)
	m := NewSessionManager(testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo)
	defer m.Stop()

	ln, err := m.Listen("tcp", "127.0.0.1:0", ntcp2.AddressFamilyIPv4)
	require.NoError(t, err)

	sm := NewShutdownManager(m, 200*time.Millisecond)
	sm.RegisterListener(ln)

	require.NoError(t, sm.Shutdown())

	_, err = net.Dial("tcp", ln.Addr().String())
	assert.Error(t, err, "listener should refuse connections once shut down")
}

func TestShutdownManagerForceClosesLingeringSessions(t *testing.T) {
	owner := newRouterFixture(t)
	peer := newRouterFixture(t)
	m := NewSessionManager(testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo)
	defer m.Stop()

	remote := ntcp2.NewStaticRouterInfo(peer.static.Public, peer.identHash, peer.aesIV, nil)
	conn, _ := net.Pipe()
	session, err := ntcp2.NewInitiatorSession(conn, testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo, remote)
	require.NoError(t, err)
	require.NoError(t, m.registerOutbound(remote.StaticPublicKey(), session))

	sm := NewShutdownManager(m, 50*time.Millisecond)
	require.NoError(t, sm.Shutdown())
	assert.Equal(t, 0, m.Count())
}

func TestShutdownManagerIsIdempotent(t *testing.T) {
	owner := newRouterFixture(t)
	m := NewSessionManager(testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo)
	defer m.Stop()

	sm := NewShutdownManager(m, 50*time.Millisecond)
	require.NoError(t, sm.Shutdown())
	require.NoError(t, sm.Shutdown())
}

func TestShutdownManagerUnregisterListenerSkipsClose(t *testing.T) {
	owner := newRouterFixture(t)
	m := NewSessionManager(testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo)
	defer m.Stop()

	ln, err := m.Listen("tcp", "127.0.0.1:0", ntcp2.AddressFamilyIPv4)
	require.NoError(t, err)
	defer ln.Close()

	sm := NewShutdownManager(m, 50*time.Millisecond)
	sm.RegisterListener(ln)
	sm.UnregisterListener(ln)

	require.NoError(t, sm.Shutdown())

	_, err = net.Dial("tcp", ln.Addr().String())
	assert.NoError(t, err, "unregistered listener should remain open after shutdown")
}
