package ntcp2

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/ntcp2/block"
	"github.com/go-i2p/ntcp2/handshake"
	"github.com/go-i2p/ntcp2/noisecrypto"
	"github.com/sirupsen/logrus"
)

// maxFramePayload is the largest plaintext a single data-phase frame can
// carry: a uint16 ciphertext length minus the AEAD tag minus one block
// header, leaving room for at least one byte of block payload.
const maxFramePayload = 0xFFFF - noisecrypto.AEADTagSize - block.HeaderLen

// Session drives one NTCP2 peer connection end to end: the three-message
// Noise_XK(sk) handshake, then framed AEAD data-phase Read/Write, as a
// net.Conn. It composes the handshake processors, DataPhase framing and
// block codec this package and its siblings already implement.
type Session struct {
	underlying net.Conn
	config     *Config
	role       string // "initiator" or "responder"

	localStatic    noisecrypto.KeyPair
	localIdentHash [32]byte
	localAesIV     [16]byte
	localRouterInfo []byte

	remote RouterInfoProvider // nil for a responder until learned

	paddingRequest   *handshake.PaddingPolicy
	paddingCreated   *handshake.PaddingPolicy
	paddingConfirmed *handshake.PaddingPolicy

	ss        *handshake.SymmetricState
	ephemeral noisecrypto.KeyPair
	iv        [16]byte

	dataPhase *DataPhase

	remoteStaticKey [32]byte
	remoteRouterInfo []byte

	localAddr  *NTCP2Addr
	remoteAddr *NTCP2Addr

	state *stateTracker

	handshakeMutex sync.Mutex
	readMutex      sync.Mutex
	writeMutex     sync.Mutex

	readAppBuf []byte

	validFramesReceived uint64

	metrics *SessionMetrics
}

// sessionOpts bundles constructor parameters shared by the initiator and
// responder paths.
type sessionOpts struct {
	underlying      net.Conn
	config          *Config
	localStatic     noisecrypto.KeyPair
	localIdentHash  [32]byte
	localAesIV      [16]byte
	localRouterInfo []byte
}

// NewInitiatorSession creates a Session that will dial remote as the
// handshake initiator. localRouterInfo is the caller's own serialized
// RouterInfo, sent to the responder as SessionConfirmed's Part 2 payload.
func NewInitiatorSession(underlying net.Conn, config *Config, localStatic noisecrypto.KeyPair, localIdentHash [32]byte, localAesIV [16]byte, localRouterInfo []byte, remote RouterInfoProvider) (*Session, error) {
	if remote == nil {
		return nil, errInvalidArgument("ntcp2", "remote router info cannot be nil for an initiator session")
	}
	s, err := newSession(sessionOpts{
		underlying:      underlying,
		config:          config,
		localStatic:     localStatic,
		localIdentHash:  localIdentHash,
		localAesIV:      localAesIV,
		localRouterInfo: localRouterInfo,
	}, "initiator")
	if err != nil {
		return nil, err
	}
	s.remote = remote
	return s, nil
}

// NewResponderSession creates a Session that will accept an inbound
// connection as the handshake responder. The remote's identity is not known
// until SessionConfirmed is received.
func NewResponderSession(underlying net.Conn, config *Config, localStatic noisecrypto.KeyPair, localIdentHash [32]byte, localAesIV [16]byte, localRouterInfo []byte) (*Session, error) {
	return newSession(sessionOpts{
		underlying:      underlying,
		config:          config,
		localStatic:     localStatic,
		localIdentHash:  localIdentHash,
		localAesIV:      localAesIV,
		localRouterInfo: localRouterInfo,
	}, "responder")
}

func newSession(o sessionOpts, role string) (*Session, error) {
	if err := validateSessionParams(o.underlying, o.config); err != nil {
		return nil, err
	}

	paddingRequest, err := handshake.NewPaddingPolicy("session_request", o.config.MinPaddingRequest, o.config.MaxPaddingRequest)
	if err != nil {
		return nil, err
	}
	paddingCreated, err := handshake.NewPaddingPolicy("session_created", o.config.MinPaddingCreated, o.config.MaxPaddingCreated)
	if err != nil {
		return nil, err
	}
	paddingConfirmed, err := handshake.NewPaddingPolicy("session_confirmed", o.config.MinPaddingConfirmed, o.config.MaxPaddingConfirmed)
	if err != nil {
		return nil, err
	}

	localAddr, err := NewNTCP2Addr(o.underlying.LocalAddr(), o.localIdentHash, role)
	if err != nil {
		return nil, err
	}

	s := &Session{
		underlying:       o.underlying,
		config:           o.config,
		role:             role,
		localStatic:      o.localStatic,
		localIdentHash:   o.localIdentHash,
		localAesIV:       o.localAesIV,
		localRouterInfo:  append([]byte{}, o.localRouterInfo...),
		paddingRequest:   paddingRequest,
		paddingCreated:   paddingCreated,
		paddingConfirmed: paddingConfirmed,
		ss:               handshake.NewSymmetricState(),
		localAddr:        localAddr,
		state:            newStateTracker(),
		metrics:          newSessionMetrics(),
	}

	log.WithFields(logrus.Fields{"role": role}).Debug("ntcp2 session created")
	return s, nil
}

func validateSessionParams(underlying net.Conn, config *Config) error {
	if underlying == nil {
		return errInvalidArgument("ntcp2", "underlying connection cannot be nil")
	}
	if config == nil {
		return errInvalidArgument("ntcp2", "config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}
	return nil
}

// Handshake performs the three-message Noise_XK(sk) handshake exactly once.
// Use HandshakeWithRetry to apply Config's retry policy.
func (s *Session) Handshake(ctx context.Context) error {
	s.handshakeMutex.Lock()
	defer s.handshakeMutex.Unlock()

	if s.state.isDataPhase() {
		return nil
	}
	if s.state.isTerminal() {
		return errNotReady("ntcp2", "session has already terminated")
	}

	hsCtx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	defer cancel()

	s.metrics.SetHandshakeStart()

	if err := s.runHandshakeWithDeadline(hsCtx); err != nil {
		s.failHandshake(err)
		return err
	}

	if err := s.finalizeDataPhase(); err != nil {
		s.failHandshake(err)
		return err
	}

	s.metrics.SetHandshakeEnd()
	log.WithFields(logrus.Fields{
		"role":     s.role,
		"duration": s.metrics.HandshakeDuration().String(),
	}).Info("ntcp2 handshake complete")
	return nil
}

// failHandshake routes a failed handshake attempt per the error taxonomy:
// fatal errors terminate the session permanently (and, at the manager
// layer, blacklist the peer); non-fatal errors reset the session to
// Uninitialized so HandshakeWithRetry can attempt it again.
func (s *Session) failHandshake(err error) {
	if IsFatal(err) {
		s.state.setTerminating(block.TerminationIncompatibleOptions)
		return
	}
	s.state.reset()
	s.ss = handshake.NewSymmetricState()
	noisecrypto.Zeroize(s.ephemeral.Private[:])
	s.ephemeral = noisecrypto.KeyPair{}
}

// runHandshakeWithDeadline propagates ctx's deadline onto the underlying
// socket (blocking net.Conn reads cannot otherwise observe cancellation)
// and dispatches to the role-specific three-message flow.
func (s *Session) runHandshakeWithDeadline(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.underlying.SetDeadline(deadline); err != nil {
			return errSocket("ntcp2", err)
		}
		defer s.underlying.SetDeadline(time.Time{})
	}

	done := make(chan error, 1)
	go func() { done <- s.executeRoleBasedHandshake() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errCancelled("ntcp2", "handshake cancelled or timed out")
	}
}

func (s *Session) executeRoleBasedHandshake() error {
	if s.role == "initiator" {
		return s.performInitiatorHandshake()
	}
	return s.performResponderHandshake()
}

func (s *Session) performInitiatorHandshake() error {
	s.state.setHandshakePhase(handshake.PhaseSessionRequest)

	var err error
	s.ephemeral, err = noisecrypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	s.iv = s.remote.AesIV()

	part2, err := s.buildPart2Payload()
	if err != nil {
		return err
	}
	opts1 := HandshakeOptions{
		Version:   protocolVersion,
		M3P2Len:   uint16(len(part2) + noisecrypto.AEADTagSize),
		Timestamp: uint32(time.Now().Unix()),
	}
	wire1, outIV, err := WriteSessionRequest(s.ss, s.ephemeral, s.remote.StaticPublicKey(), s.remote.IdentHash(), s.iv, opts1, s.paddingRequest)
	if err != nil {
		return err
	}
	if _, err := s.underlying.Write(wire1); err != nil {
		return errSocket("ntcp2", err)
	}

	s.state.setHandshakePhase(handshake.PhaseSessionCreated)
	wire2, err := readFullMessageUnbounded(s.underlying)
	if err != nil {
		return err
	}
	responderEphemeralPub, _, _, err := ReadSessionCreated(s.ss, s.ephemeral, s.remote.IdentHash(), outIV, wire2, s.paddingCreated, s.config.ClockSkewTolerance, time.Now())
	if err != nil {
		return err
	}

	s.state.setHandshakePhase(handshake.PhaseSessionConfirmed)
	wire3, err := WriteSessionConfirmed(s.ss, s.localStatic, responderEphemeralPub, part2)
	if err != nil {
		return err
	}
	if _, err := s.underlying.Write(wire3); err != nil {
		return errSocket("ntcp2", err)
	}

	remoteAddr, err := NewNTCP2Addr(s.underlying.RemoteAddr(), s.remote.IdentHash(), "responder")
	if err != nil {
		return err
	}
	s.remoteAddr = remoteAddr
	s.remoteStaticKey = s.remote.StaticPublicKey()
	return nil
}

func (s *Session) performResponderHandshake() error {
	s.state.setHandshakePhase(handshake.PhaseSessionRequest)

	wire1, err := readFullMessageUnbounded(s.underlying)
	if err != nil {
		return err
	}
	initiatorEphemeralPub, requestOpts, outIV, err := ReadSessionRequest(s.ss, s.localStatic.Private, s.localIdentHash, s.localAesIV, wire1, s.paddingRequest, s.config.ClockSkewTolerance, time.Now())
	if err != nil {
		return err
	}

	s.state.setHandshakePhase(handshake.PhaseSessionCreated)
	var genErr error
	s.ephemeral, genErr = noisecrypto.GenerateKeyPair()
	if genErr != nil {
		return genErr
	}
	opts2 := HandshakeOptions{Version: protocolVersion, Timestamp: uint32(time.Now().Unix())}
	wire2, _, err := WriteSessionCreated(s.ss, s.ephemeral, initiatorEphemeralPub, s.localIdentHash, outIV, opts2, s.paddingCreated)
	if err != nil {
		return err
	}
	if _, err := s.underlying.Write(wire2); err != nil {
		return errSocket("ntcp2", err)
	}

	s.state.setHandshakePhase(handshake.PhaseSessionConfirmed)
	wire3, err := readFullMessageUnbounded(s.underlying)
	if err != nil {
		return err
	}
	initiatorStaticPub, part2Payload, err := ReadSessionConfirmed(s.ss, s.ephemeral, wire3, int(requestOpts.M3P2Len))
	if err != nil {
		return err
	}
	// Part 2 decrypted under the "se" key, so the static key is proven and
	// is recorded before the identity checks, letting the caller blacklist
	// it if they fail.
	s.remoteStaticKey = initiatorStaticPub

	if err := s.verifyInitiatorIdentity(initiatorStaticPub, part2Payload); err != nil {
		return err
	}

	remoteAddr, err := NewNTCP2Addr(s.underlying.RemoteAddr(), addrHashFromStaticKey(initiatorStaticPub), "initiator")
	if err != nil {
		return err
	}
	s.remoteAddr = remoteAddr
	return nil
}

// buildPart2Payload encodes the initiator's own RouterInfo, and optionally a
// trailing Padding block, as the block stream carried in SessionConfirmed's
// Part 2.
func (s *Session) buildPart2Payload() ([]byte, error) {
	blocks := []block.Block{block.NewRouterInfo(s.localRouterInfo)}

	pad, err := s.paddingConfirmed.Generate()
	if err != nil {
		return nil, err
	}
	if len(pad) > 0 {
		blocks = append(blocks, block.Block{Type: block.TypePadding, Data: pad})
	}
	return block.EncodeAll(blocks)
}

// verifyInitiatorIdentity enforces spec.md §4.4.3's Part 2 composition rule
// ("MUST contain exactly one RouterInfo block and MAY be followed by a
// Padding block; any other composition fails with InvalidM3P2") and then
// checks the embedded RouterInfo's static key against the one authenticated
// by Part 1's "s" token, per §4.4.3's identity check. Full RouterInfo
// parsing is out of scope, so the embedded blob's leading 32 bytes are taken
// as its declared static key, the convention EncodeRouterInfoBlob follows.
func (s *Session) verifyInitiatorIdentity(authenticatedStaticKey [32]byte, part2Payload []byte) error {
	blocks, err := block.DecodeAll(part2Payload)
	if err != nil {
		return err
	}
	if len(blocks) == 0 || blocks[0].Type != block.TypeRouterInfo {
		return errInvalidM3P2("ntcp2", "SessionConfirmed Part 2 must begin with exactly one RouterInfo block")
	}
	if len(blocks) > 2 || (len(blocks) == 2 && blocks[1].Type != block.TypePadding) {
		return errInvalidM3P2("ntcp2", "SessionConfirmed Part 2 may only contain a RouterInfo block followed by a Padding block")
	}

	routerInfo := blocks[0].Data
	if len(routerInfo) < 32 {
		return errIdentityMismatch("ntcp2", "RouterInfo block too short to carry a static key")
	}
	var declared [32]byte
	copy(declared[:], routerInfo[:32])
	if declared != authenticatedStaticKey {
		return errIdentityMismatch("ntcp2", "RouterInfo static key does not match Part 1 authenticated key")
	}

	s.remoteRouterInfo = append([]byte{}, routerInfo...)
	return nil
}

// finalizeDataPhase splits the handshake's symmetric state into directional
// cipher states and length codecs and transitions the session into
// DataPhase.
func (s *Session) finalizeDataPhase() error {
	send, recv, err := s.ss.Split()
	if err != nil {
		return err
	}

	h := s.ss.HandshakeHash()
	sendK1, sendK2, sendIV := deriveLengthCodecSeed(h[:], s.role == "initiator")
	recvK1, recvK2, recvIV := deriveLengthCodecSeed(h[:], s.role != "initiator")

	if s.role != "initiator" {
		send, recv = recv, send
	}

	s.dataPhase = NewDataPhase(send, recv,
		NewLengthCodec(sendK1, sendK2, sendIV),
		NewLengthCodec(recvK1, recvK2, recvIV))
	s.state.setDataPhase()
	return nil
}

// deriveLengthCodecSeed derives one direction's SipHash keys and initial IV
// from the handshake hash. forInitiatorWrites selects which half of the
// derived material seeds the initiator-to-responder direction, keeping the
// two directions independent the same way Split keeps the two cipher keys
// independent.
func deriveLengthCodecSeed(handshakeHash []byte, forInitiatorWrites bool) (k1, k2, iv uint64) {
	outputs, err := noisecrypto.HKDF(handshakeHash, nil, 2)
	if err != nil {
		// HKDF only fails on a malformed n argument, never on input size;
		// deriveLengthCodecSeed always passes n=2.
		panic(err)
	}
	src := outputs[0]
	if !forInitiatorWrites {
		src = outputs[1]
	}
	return binary.BigEndian.Uint64(src[0:8]), binary.BigEndian.Uint64(src[8:16]), binary.BigEndian.Uint64(src[16:24])
}

// addrHashFromStaticKey stands in for a full RouterInfo identity hash when
// labeling a responder-learned peer's NTCP2Addr: the responder authenticates
// the initiator's static key during SessionConfirmed but never receives the
// full RouterInfo document that IdentHash is actually computed over (that
// parsing is out of scope here, per SPEC_FULL.md). Using the static key
// keeps NTCP2Addr.String() stable and unique per peer without claiming to be
// the real identity hash.
func addrHashFromStaticKey(staticKey [32]byte) [32]byte {
	return staticKey
}

// readFullMessageUnbounded reads one handshake message of unknown total
// length with a single Read of at most 8192 bytes, and takes whatever that
// Read returns as the whole message. NTCP2 handshake messages are not
// self-delimited on the wire beyond their fixed Noise portion plus padding;
// the three processor functions validate the length and padding of what
// is returned. A message that arrives split across more than one Read is
// not reassembled.
func readFullMessageUnbounded(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 8192)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, errSocket("ntcp2", err)
	}
	return buf[:n], nil
}

// Read implements net.Conn. It decodes data-phase frames as needed and
// serves their I2NPMessage/RouterInfo block payloads as a byte stream.
func (s *Session) Read(b []byte) (int, error) {
	s.readMutex.Lock()
	defer s.readMutex.Unlock()

	if err := s.validateDataPhaseReady(); err != nil {
		return 0, err
	}

	if len(s.readAppBuf) == 0 {
		if err := s.fillReadBuffer(); err != nil {
			return 0, err
		}
	}

	n := copy(b, s.readAppBuf)
	s.readAppBuf = s.readAppBuf[n:]
	s.metrics.AddBytesRead(int64(n))
	return n, nil
}

func (s *Session) validateDataPhaseReady() error {
	if s.state.isTerminal() {
		return errNotReady("ntcp2", "session is terminating or terminated")
	}
	if !s.state.isDataPhase() {
		return errNotReady("ntcp2", "handshake has not completed")
	}
	return nil
}

// fillReadBuffer reads one data-phase frame off the wire, decrypts it,
// decodes its blocks, and appends any application payload to readAppBuf.
func (s *Session) fillReadBuffer() error {
	if err := s.configureReadTimeout(); err != nil {
		return err
	}

	var prefix [FrameLengthPrefixSize]byte
	if _, err := io.ReadFull(s.underlying, prefix[:]); err != nil {
		return errSocket("ntcp2", err)
	}
	ciphertextLen := s.dataPhase.DecodeFrameLength(prefix)

	ciphertext := make([]byte, ciphertextLen)
	if _, err := io.ReadFull(s.underlying, ciphertext); err != nil {
		return errSocket("ntcp2", err)
	}

	plaintext, err := s.dataPhase.DecodeFrameBody(ciphertext)
	if err != nil {
		s.state.setTerminating(block.TerminationDataPhaseAEADFail)
		return err
	}
	s.validFramesReceived++

	blocks, err := block.DecodeAll(plaintext)
	if err != nil {
		s.state.setTerminating(block.TerminationPayloadFormatError)
		return err
	}

	return s.consumeBlocks(blocks)
}

func (s *Session) consumeBlocks(blocks []block.Block) error {
	for _, b := range blocks {
		switch b.Type {
		case block.TypeI2NPMessage, block.TypeRouterInfo:
			s.readAppBuf = append(s.readAppBuf, b.Data...)
		case block.TypeTermination:
			if len(b.Data) < 9 {
				return errInvalidBlockType("ntcp2", b.Type)
			}
			s.state.setTerminating(block.TerminationReason(b.Data[8]))
			return io.EOF
		case block.TypeDateTime, block.TypeOptions, block.TypePadding:
			// no application-visible effect
		default:
			return errInvalidBlockType("ntcp2", b.Type)
		}
	}
	return nil
}

func (s *Session) configureReadTimeout() error {
	if s.config.ReadTimeout > 0 {
		if err := s.underlying.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return errSocket("ntcp2", err)
		}
	}
	return nil
}

// Write implements net.Conn. It wraps b as one or more I2NPMessage blocks,
// chunking as needed to fit each data-phase frame's maximum ciphertext
// length, and seals and sends one frame per chunk.
func (s *Session) Write(b []byte) (int, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if err := s.validateDataPhaseReady(); err != nil {
		return 0, err
	}
	if err := s.configureWriteTimeout(); err != nil {
		return 0, err
	}

	written := 0
	for written < len(b) {
		end := written + maxFramePayload
		if end > len(b) {
			end = len(b)
		}
		if err := s.writeChunk(b[written:end]); err != nil {
			return written, err
		}
		written = end
	}
	s.metrics.AddBytesWritten(int64(written))
	return written, nil
}

func (s *Session) writeChunk(chunk []byte) error {
	plaintext, err := block.EncodeAll([]block.Block{block.NewI2NPMessage(chunk)})
	if err != nil {
		return err
	}
	frame, err := s.dataPhase.EncodeFrame(plaintext)
	if err != nil {
		s.state.setTerminating(block.TerminationDataPhaseAEADFail)
		return err
	}
	if _, err := s.underlying.Write(frame); err != nil {
		return errSocket("ntcp2", err)
	}
	return nil
}

func (s *Session) configureWriteTimeout() error {
	if s.config.WriteTimeout > 0 {
		if err := s.underlying.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return errSocket("ntcp2", err)
		}
	}
	return nil
}

// Close sends a Termination block best-effort, then closes the underlying
// connection.
func (s *Session) Close() error {
	if s.state.isDataPhase() {
		s.sendTermination(block.TerminationNormalClose)
	}
	s.state.setTerminated()
	noisecrypto.Zeroize(s.ephemeral.Private[:])
	noisecrypto.Zeroize(s.localStatic.Private[:])
	if err := s.underlying.Close(); err != nil {
		return errSocket("ntcp2", err)
	}
	return nil
}

func (s *Session) sendTermination(reason block.TerminationReason) {
	plaintext, err := block.EncodeAll([]block.Block{block.NewTermination(s.validFramesReceived, reason, nil)})
	if err != nil {
		return
	}
	frame, err := s.dataPhase.EncodeFrame(plaintext)
	if err != nil {
		return
	}
	_, _ = s.underlying.Write(frame)
}

func (s *Session) LocalAddr() net.Addr  { return s.localAddr }
func (s *Session) RemoteAddr() net.Addr { return s.remoteAddr }

func (s *Session) SetDeadline(t time.Time) error {
	if err := s.underlying.SetDeadline(t); err != nil {
		return errSocket("ntcp2", err)
	}
	return nil
}

func (s *Session) SetReadDeadline(t time.Time) error {
	if err := s.underlying.SetReadDeadline(t); err != nil {
		return errSocket("ntcp2", err)
	}
	return nil
}

func (s *Session) SetWriteDeadline(t time.Time) error {
	if err := s.underlying.SetWriteDeadline(t); err != nil {
		return errSocket("ntcp2", err)
	}
	return nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState { return s.state.get() }

// Role returns "initiator" or "responder", fixed at construction. A
// SessionManager uses this to break ties when an inbound and an outbound
// session race to the same peer.
func (s *Session) Role() string { return s.role }

// Metrics returns the session's connection metrics: handshake timing and
// cumulative bytes transferred.
func (s *Session) Metrics() *SessionMetrics { return s.metrics }

// RemoteStaticKey returns the peer's authenticated static public key. It is
// only valid once the handshake has completed.
func (s *Session) RemoteStaticKey() [32]byte { return s.remoteStaticKey }

// RemoteRouterInfo returns the raw RouterInfo blob the peer presented in
// SessionConfirmed. Only populated on the responder side.
func (s *Session) RemoteRouterInfo() []byte { return append([]byte{}, s.remoteRouterInfo...) }
