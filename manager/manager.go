package manager

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/ntcp2/ntcp2"
	"github.com/go-i2p/ntcp2/noisecrypto"
	"github.com/sirupsen/logrus"
)

// SessionManager owns the session table described in spec.md §4.7: a
// map from a peer's static public key to its live Session, guarded for
// concurrent outbound dials and inbound accepts, plus the peer blacklist
// that keeps a router from re-handshaking with a peer that just triggered
// a fatal error.
type SessionManager struct {
	localStatic     noisecrypto.KeyPair
	localIdentHash  [32]byte
	localAesIV      [16]byte
	localRouterInfo []byte
	config          *ntcp2.Config

	mu       sync.RWMutex
	sessions map[[32]byte]*ntcp2.Session

	blacklistMu sync.RWMutex
	blacklist   map[[32]byte]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSessionManager creates a SessionManager for a router identified by the
// given static keypair, identity hash and published AES IV. It starts the
// background blacklist-expiry sweep immediately.
func NewSessionManager(config *ntcp2.Config, localStatic noisecrypto.KeyPair, localIdentHash [32]byte, localAesIV [16]byte, localRouterInfo []byte) *SessionManager {
	if config == nil {
		config = ntcp2.NewConfig()
	}
	m := &SessionManager{
		localStatic:     localStatic,
		localIdentHash:  localIdentHash,
		localAesIV:      localAesIV,
		localRouterInfo: append([]byte{}, localRouterInfo...),
		config:          config,
		sessions:        make(map[[32]byte]*ntcp2.Session),
		blacklist:       make(map[[32]byte]time.Time),
		stopCh:          make(chan struct{}),
	}
	go m.sweepBlacklist()
	return m
}

// Dial opens an outbound session to remote over network/addr, runs the
// handshake with the manager's configured retry policy, and registers the
// session in the table on success. A second outbound session to the same
// peer's static key fails with DuplicateSession, matching spec.md §4.7.
func (m *SessionManager) Dial(ctx context.Context, network, addr string, remote ntcp2.RouterInfoProvider) (*ntcp2.Session, error) {
	if remote == nil {
		return nil, ntcp2.NewInvalidArgumentError("manager", "remote router info cannot be nil")
	}
	peerKey := remote.StaticPublicKey()

	if m.Blacklisted(peerKey) {
		return nil, ntcp2.NewNotReadyError("manager", "peer is currently blacklisted")
	}
	if err := m.rejectIfDuplicateInitiator(peerKey); err != nil {
		return nil, err
	}

	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}

	session, err := ntcp2.NewInitiatorSession(conn, m.config, m.localStatic, m.localIdentHash, m.localAesIV, m.localRouterInfo, remote)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := session.HandshakeWithRetry(ctx); err != nil {
		conn.Close()
		if ntcp2.IsFatal(err) {
			m.Blacklist(peerKey)
		}
		return nil, err
	}

	if err := m.registerOutbound(peerKey, session); err != nil {
		session.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{"peer": addr}).Info("ntcp2 outbound session established")
	return session, nil
}

// rejectIfDuplicateInitiator performs the cheap early check against an
// existing outbound session before paying for a dial and handshake. The
// authoritative check happens again under lock in registerOutbound.
func (m *SessionManager) rejectIfDuplicateInitiator(peerKey [32]byte) error {
	m.mu.RLock()
	existing, ok := m.sessions[peerKey]
	m.mu.RUnlock()
	if ok && existing.Role() == "initiator" {
		return ntcp2.NewDuplicateSessionError("manager", "an outbound session to this peer already exists")
	}
	return nil
}

// registerOutbound inserts a freshly-handshaken outbound session into the
// table. Per spec.md §4.7's duplicate-session rule and the tie-break this
// project resolves for it (the session whose local role is Initiator wins),
// an outbound session always displaces a racing inbound one for the same
// peer, but never displaces another outbound session.
func (m *SessionManager) registerOutbound(peerKey [32]byte, session *ntcp2.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[peerKey]
	if ok {
		if existing.Role() == "initiator" {
			return ntcp2.NewDuplicateSessionError("manager", "an outbound session to this peer already exists")
		}
		existing.Close()
	}
	m.sessions[peerKey] = session
	return nil
}

// registerInbound inserts a freshly-handshaken inbound session, applying the
// same tie-break rule: an existing outbound session always wins over a
// racing inbound one.
func (m *SessionManager) registerInbound(peerKey [32]byte, session *ntcp2.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[peerKey]; ok && existing.Role() == "initiator" {
		return false
	}
	m.sessions[peerKey] = session
	return true
}

// Session returns the live session for a peer's static public key, if any.
func (m *SessionManager) Session(peerStaticPub [32]byte) (*ntcp2.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[peerStaticPub]
	return s, ok
}

// Remove drops a session from the table, e.g. after it terminates. It is a
// no-op if session is not the currently registered session for its peer
// (an already-replaced loser of a tie-break race should not evict the
// winner).
func (m *SessionManager) Remove(peerStaticPub [32]byte, session *ntcp2.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[peerStaticPub]; ok && current == session {
		delete(m.sessions, peerStaticPub)
	}
}

// Blacklist flags a peer's static key as untrusted for the manager's
// configured BlacklistDuration. It is called whenever a handshake or
// data-phase failure is fatal per the NTCP2 error taxonomy.
func (m *SessionManager) Blacklist(peerStaticPub [32]byte) {
	m.blacklistMu.Lock()
	defer m.blacklistMu.Unlock()
	m.blacklist[peerStaticPub] = time.Now().Add(m.config.BlacklistDuration)

	log.WithFields(logrus.Fields{
		"duration": m.config.BlacklistDuration.String(),
	}).Warn("peer blacklisted")
}

// Blacklisted reports whether a peer's static key is currently blacklisted.
func (m *SessionManager) Blacklisted(peerStaticPub [32]byte) bool {
	m.blacklistMu.RLock()
	defer m.blacklistMu.RUnlock()
	expiry, ok := m.blacklist[peerStaticPub]
	if !ok {
		return false
	}
	return time.Now().Before(expiry)
}

// sweepBlacklist periodically drops expired blacklist entries on a ticker,
// the same shape as a periodic pool-cleanup loop.
func (m *SessionManager) sweepBlacklist() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.performBlacklistSweep()
		}
	}
}

func (m *SessionManager) performBlacklistSweep() {
	m.blacklistMu.Lock()
	defer m.blacklistMu.Unlock()
	now := time.Now()
	for peer, expiry := range m.blacklist {
		if now.After(expiry) {
			delete(m.blacklist, peer)
		}
	}
}

// Stop ends the background blacklist sweep. It does not close any sessions
// or listeners; use ShutdownManager for full cooperative shutdown.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Count returns the number of currently registered sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
