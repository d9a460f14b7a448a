package manager

import (
	"context"
	"net"
	"sync"

	"github.com/go-i2p/ntcp2/ntcp2"
	"github.com/sirupsen/logrus"
)

// Listener wraps one underlying net.Listener (one of the two address
// families spec.md §4.7 calls out) and upgrades each accepted connection to
// a responder Session. The handshake for an accepted connection runs in the
// background; Accept returns the Session immediately so a caller's accept
// loop is never blocked behind a slow or hostile peer's handshake.
type Listener struct {
	underlying net.Listener
	manager    *SessionManager
	family     ntcp2.AddressFamily

	closeMu sync.Mutex
	closed  bool

	acceptedMu sync.RWMutex
	accepted   map[[32]byte]*ntcp2.Session
}

// NewListener wraps underlying for the given address family. It does not
// register the listener anywhere; pass it to
// ShutdownManager.RegisterListener to have it closed during a cooperative
// shutdown.
func (m *SessionManager) NewListener(underlying net.Listener, family ntcp2.AddressFamily) (*Listener, error) {
	if underlying == nil {
		return nil, ntcp2.NewInvalidArgumentError("manager", "underlying listener cannot be nil")
	}
	l := &Listener{
		underlying: underlying,
		manager:    m,
		family:     family,
		accepted:   make(map[[32]byte]*ntcp2.Session),
	}
	log.WithFields(logrus.Fields{
		"listener_addr": underlying.Addr().String(),
		"family":        family,
	}).Info("ntcp2 listener created")
	return l, nil
}

// Accept blocks until a new inbound connection arrives, wraps it as a
// responder Session, and starts its handshake in the background. The
// returned Session is not yet usable for Read/Write until its handshake
// completes; callers that need to wait for that should poll State() or use
// Session(peerStaticPub) once the peer's identity is known.
func (l *Listener) Accept() (*ntcp2.Session, error) {
	conn, err := l.underlying.Accept()
	if err != nil {
		return nil, ntcp2.NewSocketError("manager", err)
	}

	session, err := ntcp2.NewResponderSession(conn, l.manager.config, l.manager.localStatic, l.manager.localIdentHash, l.manager.localAesIV, l.manager.localRouterInfo)
	if err != nil {
		conn.Close()
		return nil, err
	}

	go l.completeInboundHandshake(session)
	return session, nil
}

// completeInboundHandshake runs the responder side of the handshake and, on
// success, registers the session both in the listener's own accepted table
// (for the inbound session(peer_static_pub) lookup spec.md §4.7 describes)
// and in the manager's session table (applying the initiator-wins tie-break
// rule against a racing outbound Dial). A fatal handshake failure
// blacklists the peer if its static key was learned before the failure.
func (l *Listener) completeInboundHandshake(session *ntcp2.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), l.manager.config.HandshakeTimeout)
	defer cancel()

	if err := session.Handshake(ctx); err != nil {
		if ntcp2.IsFatal(err) {
			peerKey := session.RemoteStaticKey()
			if peerKey != ([32]byte{}) {
				l.manager.Blacklist(peerKey)
			}
		}
		session.Close()
		return
	}

	peerKey := session.RemoteStaticKey()
	if !l.manager.registerInbound(peerKey, session) {
		log.Debug("inbound session lost tie-break to existing outbound session")
		session.Close()
		return
	}

	l.acceptedMu.Lock()
	l.accepted[peerKey] = session
	l.acceptedMu.Unlock()

	log.WithFields(logrus.Fields{"listener_addr": l.underlying.Addr().String()}).Info("ntcp2 inbound session established")
}

// Session returns the inbound session this listener accepted for a peer's
// static public key, if its handshake has completed.
func (l *Listener) Session(peerStaticPub [32]byte) (*ntcp2.Session, bool) {
	l.acceptedMu.RLock()
	defer l.acceptedMu.RUnlock()
	s, ok := l.accepted[peerStaticPub]
	return s, ok
}

// Family returns the address family this listener was created for.
func (l *Listener) Family() ntcp2.AddressFamily { return l.family }

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr { return l.underlying.Addr() }

// Close closes the underlying listener, causing Accept to return an error.
func (l *Listener) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.underlying.Close()
}
