package manager

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-i2p/ntcp2/noisecrypto"
	"github.com/go-i2p/ntcp2/ntcp2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	static     noisecrypto.KeyPair
	identHash  [32]byte
	aesIV      [16]byte
	routerInfo []byte
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	static, err := noisecrypto.GenerateKeyPair()
	require.NoError(t, err)

	var identHash [32]byte
	var aesIV [16]byte
	ih, err := noisecrypto.RandomBytes(32)
	require.NoError(t, err)
	copy(identHash[:], ih)
	iv, err := noisecrypto.RandomBytes(16)
	require.NoError(t, err)
	copy(aesIV[:], iv)

	return routerFixture{
		static:     static,
		identHash:  identHash,
		aesIV:      aesIV,
		routerInfo: ntcp2.EncodeRouterInfoBlob(static.Public, []byte("fixture")),
	}
}

func testConfig() *ntcp2.Config {
	return ntcp2.NewConfig().
		WithPaddingRequest(0, 4).
		WithPaddingCreated(0, 4).
		WithPaddingConfirmed(0, 4).
		WithHandshakeTimeout(2 * time.Second).
		WithBlacklistDuration(50 * time.Millisecond)
}

func TestSessionManagerDialRejectsNilRemote(t *testing.T) {
	responder := newRouterFixture(t)
	m := NewSessionManager(testConfig(), responder.static, responder.identHash, responder.aesIV, responder.routerInfo)
	defer m.Stop()

	_, err := m.Dial(context.Background(), "tcp", "127.0.0.1:0", nil)
	require.Error(t, err)
	assert.Equal(t, ntcp2.CodeInvalidArgument, ntcp2.Code(err))
}

func TestSessionManagerDialRejectsBlacklistedPeer(t *testing.T) {
	initiator := newRouterFixture(t)
	responder := newRouterFixture(t)
	m := NewSessionManager(testConfig(), initiator.static, initiator.identHash, initiator.aesIV, initiator.routerInfo)
	defer m.Stop()

	remote := ntcp2.NewStaticRouterInfo(responder.static.Public, responder.identHash, responder.aesIV, nil)
	m.Blacklist(remote.StaticPublicKey())

	_, err := m.Dial(context.Background(), "tcp", "127.0.0.1:0", remote)
	require.Error(t, err)
	assert.Equal(t, ntcp2.CodeNotReady, ntcp2.Code(err))
}

func TestSessionManagerRejectsDuplicateOutboundSession(t *testing.T) {
	initiator := newRouterFixture(t)
	responder := newRouterFixture(t)
	m := NewSessionManager(testConfig(), initiator.static, initiator.identHash, initiator.aesIV, initiator.routerInfo)
	defer m.Stop()

	remote := ntcp2.NewStaticRouterInfo(responder.static.Public, responder.identHash, responder.aesIV, nil)
	peerKey := remote.StaticPublicKey()

	fakeConn, _ := net.Pipe()
	existing, err := ntcp2.NewInitiatorSession(fakeConn, testConfig(), initiator.static, initiator.identHash, initiator.aesIV, initiator.routerInfo, remote)
	require.NoError(t, err)
	require.NoError(t, m.registerOutbound(peerKey, existing))

	_, err = m.Dial(context.Background(), "tcp", "127.0.0.1:0", remote)
	require.Error(t, err)
	assert.Equal(t, ntcp2.CodeDuplicateSession, ntcp2.Code(err))
}

func TestSessionManagerDialAndListenEndToEnd(t *testing.T) {
	server := newRouterFixture(t)
	client := newRouterFixture(t)

	serverMgr := NewSessionManager(testConfig(), server.static, server.identHash, server.aesIV, server.routerInfo)
	defer serverMgr.Stop()
	clientMgr := NewSessionManager(testConfig(), client.static, client.identHash, client.aesIV, client.routerInfo)
	defer clientMgr.Stop()

	ln, err := serverMgr.Listen("tcp", "127.0.0.1:0", ntcp2.AddressFamilyIPv4)
	require.NoError(t, err)
	defer ln.Close()

	acceptedCh := make(chan *ntcp2.Session, 1)
	go func() {
		s, err := ln.Accept()
		if err != nil {
			return
		}
		acceptedCh <- s
	}()

	remote := ntcp2.NewStaticRouterInfo(server.static.Public, server.identHash, server.aesIV, nil)
	session, err := clientMgr.Dial(context.Background(), "tcp", ln.Addr().String(), remote)
	require.NoError(t, err)
	defer session.Close()

	inboundSession := <-acceptedCh
	require.Eventually(t, func() bool {
		return inboundSession.State() == ntcp2.StateDataPhase
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, clientMgr.Count())
	assert.Equal(t, 1, serverMgr.Count())

	serverSession, ok := serverMgr.Session(client.static.Public)
	require.True(t, ok)
	assert.Same(t, inboundSession, serverSession)
}

func TestSessionManagerBlacklistExpiry(t *testing.T) {
	owner := newRouterFixture(t)
	m := NewSessionManager(testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo)
	defer m.Stop()

	var peer [32]byte
	peer[0] = 0x42
	m.Blacklist(peer)
	assert.True(t, m.Blacklisted(peer))

	time.Sleep(m.config.BlacklistDuration + 20*time.Millisecond)
	assert.False(t, m.Blacklisted(peer))
}

func TestSessionManagerRegisterInboundTieBreak(t *testing.T) {
	owner := newRouterFixture(t)
	peerFixture := newRouterFixture(t)
	m := NewSessionManager(testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo)
	defer m.Stop()

	remote := ntcp2.NewStaticRouterInfo(peerFixture.static.Public, peerFixture.identHash, peerFixture.aesIV, nil)
	peerKey := remote.StaticPublicKey()

	outboundConn, _ := net.Pipe()
	outbound, err := ntcp2.NewInitiatorSession(outboundConn, testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo, remote)
	require.NoError(t, err)
	require.NoError(t, m.registerOutbound(peerKey, outbound))

	inboundConn, _ := net.Pipe()
	inbound, err := ntcp2.NewResponderSession(inboundConn, testConfig(), owner.static, owner.identHash, owner.aesIV, owner.routerInfo)
	require.NoError(t, err)

	won := m.registerInbound(peerKey, inbound)
	assert.False(t, won, "an existing outbound session must win the tie-break")

	current, ok := m.Session(peerKey)
	require.True(t, ok)
	assert.Same(t, outbound, current)
}
