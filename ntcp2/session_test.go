package ntcp2

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-i2p/ntcp2/block"
	"github.com/go-i2p/ntcp2/noisecrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peerFixture bundles one side's identity for a net.Pipe-based handshake
// test.
type peerFixture struct {
	static     noisecrypto.KeyPair
	identHash  [32]byte
	aesIV      [16]byte
	routerInfo []byte
}

func newPeerFixture(t *testing.T) peerFixture {
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

	return peerFixture{
		static:     static,
		identHash:  identHash,
		aesIV:      aesIV,
		routerInfo: EncodeRouterInfoBlob(static.Public, []byte("test-router")),
	}
}

func newTestConfig() *Config {
	return NewConfig().
		WithPaddingRequest(0, 8).
		WithPaddingCreated(0, 8).
		WithPaddingConfirmed(0, 8).
		WithHandshakeTimeout(5 * time.Second)
}

func establishSessionPair(t *testing.T) (initiator, responder *Session) {
	t.Helper()
	initPeer := newPeerFixture(t)
	respPeer := newPeerFixture(t)

	initConn, respConn := net.Pipe()

	remote := NewStaticRouterInfo(respPeer.static.Public, respPeer.identHash, respPeer.aesIV, nil)

	var err error
	initiator, err = NewInitiatorSession(initConn, newTestConfig(), initPeer.static, initPeer.identHash, initPeer.aesIV, initPeer.routerInfo, remote)
	require.NoError(t, err)

	responder, err = NewResponderSession(respConn, newTestConfig(), respPeer.static, respPeer.identHash, respPeer.aesIV, respPeer.routerInfo)
	require.NoError(t, err)

	initErrCh := make(chan error, 1)
	respErrCh := make(chan error, 1)
	go func() { initErrCh <- initiator.Handshake(context.Background()) }()
	go func() { respErrCh <- responder.Handshake(context.Background()) }()

	require.NoError(t, <-initErrCh)
	require.NoError(t, <-respErrCh)

	return initiator, responder
}

func TestSessionHandshakeRoundTrip(t *testing.T) {
	initiator, responder := establishSessionPair(t)
	defer initiator.Close()
	defer responder.Close()

	assert.Equal(t, StateDataPhase, initiator.State())
	assert.Equal(t, StateDataPhase, responder.State())
	assert.Equal(t, initiator.localStatic.Public, responder.RemoteStaticKey())
}

func TestSessionDataPhaseReadWrite(t *testing.T) {
	initiator, responder := establishSessionPair(t)
	defer initiator.Close()
	defer responder.Close()

	payload := []byte("hello from the initiator")
	writeErrCh := make(chan error, 1)
	go func() {
		_, err := initiator.Write(payload)
		writeErrCh <- err
	}()

	buf := make([]byte, len(payload))
	_, err := io.ReadFull(responder, buf)
	require.NoError(t, err)
	require.NoError(t, <-writeErrCh)
	assert.Equal(t, payload, buf)
}

func TestSessionDataPhaseBidirectional(t *testing.T) {
	initiator, responder := establishSessionPair(t)
	defer initiator.Close()
	defer responder.Close()

	a2b := []byte("ping")
	b2a := []byte("pong-pong")

	errCh := make(chan error, 2)
	go func() { _, err := initiator.Write(a2b); errCh <- err }()
	go func() { _, err := responder.Write(b2a); errCh <- err }()

	bufA := make([]byte, len(b2a))
	bufB := make([]byte, len(a2b))
	_, err := io.ReadFull(initiator, bufA)
	require.NoError(t, err)
	_, err = io.ReadFull(responder, bufB)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.NoError(t, <-errCh)

	assert.Equal(t, b2a, bufA)
	assert.Equal(t, a2b, bufB)
}

func TestSessionReadBeforeHandshakeIsNotReady(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	_, err = s.Read(make([]byte, 10))
	require.Error(t, err)
	assert.Equal(t, CodeNotReady, Code(err))
}

func TestSessionHandshakeRejectsNilRemoteForInitiator(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	_, err := NewInitiatorSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo, nil)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidArgument, Code(err))
}

func TestVerifyInitiatorIdentityRejectsWrongComposition(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	padOnly, err := block.EncodeAll([]block.Block{{Type: block.TypePadding, Data: []byte{1, 2, 3}}})
	require.NoError(t, err)

	err = s.verifyInitiatorIdentity(peer.static.Public, padOnly)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidM3P2, Code(err))
}

func TestVerifyInitiatorIdentityRejectsTrailingJunkAfterPadding(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	payload, err := block.EncodeAll([]block.Block{
		block.NewRouterInfo(EncodeRouterInfoBlob(peer.static.Public, nil)),
		{Type: block.TypePadding, Data: []byte{1}},
		{Type: block.TypePadding, Data: []byte{2}},
	})
	require.NoError(t, err)

	err = s.verifyInitiatorIdentity(peer.static.Public, payload)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidM3P2, Code(err))
}

func TestVerifyInitiatorIdentityRejectsKeyMismatch(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	other := newPeerFixture(t)
	payload, err := block.EncodeAll([]block.Block{block.NewRouterInfo(EncodeRouterInfoBlob(other.static.Public, nil))})
	require.NoError(t, err)

	err = s.verifyInitiatorIdentity(peer.static.Public, payload)
	require.Error(t, err)
	assert.Equal(t, CodeIdentityMismatch, Code(err))
}

func TestVerifyInitiatorIdentityAcceptsRouterInfoPlusPadding(t *testing.T) {
	conn, _ := net.Pipe()
	peer := newPeerFixture(t)
	s, err := NewResponderSession(conn, newTestConfig(), peer.static, peer.identHash, peer.aesIV, peer.routerInfo)
	require.NoError(t, err)

	routerInfo := EncodeRouterInfoBlob(peer.static.Public, []byte("addrs"))
	payload, err := block.EncodeAll([]block.Block{
		block.NewRouterInfo(routerInfo),
		{Type: block.TypePadding, Data: []byte{9, 9, 9}},
	})
	require.NoError(t, err)

	require.NoError(t, s.verifyInitiatorIdentity(peer.static.Public, payload))
	assert.Equal(t, routerInfo, s.remoteRouterInfo)
}

func TestSessionCloseSendsTerminationAndIsIdempotent(t *testing.T) {
	initiator, responder := establishSessionPair(t)
	defer responder.Close()

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, err := responder.Read(buf)
		assert.ErrorIs(t, err, io.EOF)
		close(done)
	}()

	require.NoError(t, initiator.Close())
	<-done
	assert.Equal(t, StateTerminating, responder.State())
	require.NoError(t, initiator.Close())
}
