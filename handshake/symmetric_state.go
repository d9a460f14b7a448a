// Package handshake implements the Noise_XKaesobfse+hs2+hs3_25519_ChaChaPoly_SHA256
// key-mixing engine that drives the three NTCP2 handshake messages. It
// exposes the Noise Protocol Framework's symmetric-state primitives
// directly, rather than a generic pattern interpreter, because NTCP2 mixes
// raw, un-authenticated padding into the running hash between messages in a
// way a higher-level WriteMessage/ReadMessage API cannot express.
package handshake

import (
	"crypto/sha256"
	"math"

	"github.com/go-i2p/ntcp2/noisecrypto"
	"github.com/samber/oops"
)

// ProtocolName is the Noise protocol name NTCP2 mixes into the initial
// handshake hash.
const ProtocolName = "Noise_XKaesobfse+hs2+hs3_25519_ChaChaPoly_SHA256"

// MaxNonce mirrors the Noise specification's reserved nonce ceiling; NTCP2
// terminates a session rather than rekey when it is reached.
const MaxNonce = uint64(math.MaxUint64) - 1

// CipherState holds one direction's ChaCha20-Poly1305 key and nonce
// counter, established by Split at the end of the handshake.
type CipherState struct {
	key   [32]byte
	nonce uint64
}

// Encrypt seals plaintext under the current nonce and advances the counter.
func (cs *CipherState) Encrypt(ad, plaintext []byte) ([]byte, error) {
	if cs.nonce > MaxNonce {
		return nil, oops.Code("SOCKET_ERROR").In("handshake").Errorf("cipher state nonce exhausted")
	}
	out, err := noisecrypto.Seal(cs.key, cs.nonce, ad, plaintext)
	if err != nil {
		return nil, err
	}
	cs.nonce++
	return out, nil
}

// Decrypt opens ciphertext under the current nonce and advances the counter.
func (cs *CipherState) Decrypt(ad, ciphertext []byte) ([]byte, error) {
	if cs.nonce > MaxNonce {
		return nil, oops.Code("SOCKET_ERROR").In("handshake").Errorf("cipher state nonce exhausted")
	}
	out, err := noisecrypto.Open(cs.key, cs.nonce, ad, ciphertext)
	if err != nil {
		return nil, err
	}
	cs.nonce++
	return out, nil
}

// Nonce reports the next nonce value that will be used.
func (cs *CipherState) Nonce() uint64 { return cs.nonce }

// SymmetricState is the running chaining key and hash a Noise_XK handshake
// carries across its three messages.
type SymmetricState struct {
	hasKey bool
	cs     CipherState
	ck     [32]byte
	h      [32]byte
}

// NewSymmetricState initializes ck and h from the protocol name, as
// Noise's InitializeSymmetric does for names no longer than the hash size.
func NewSymmetricState() *SymmetricState {
	ss := &SymmetricState{}
	name := []byte(ProtocolName)
	if len(name) <= sha256.Size {
		copy(ss.h[:], name)
	} else {
		sum := sha256.Sum256(name)
		ss.h = sum
	}
	ss.ck = ss.h
	return ss
}

// MixHash folds data into the running hash h.
func (ss *SymmetricState) MixHash(data []byte) {
	h := sha256.New()
	h.Write(ss.h[:])
	h.Write(data)
	copy(ss.h[:], h.Sum(nil))
}

// MixKey folds a DH output into the chaining key and derives a fresh
// cipher key, resetting the nonce counter.
func (ss *SymmetricState) MixKey(dhOutput []byte) error {
	outputs, err := noisecrypto.HKDF(ss.ck[:], dhOutput, 2)
	if err != nil {
		return err
	}
	ss.ck = outputs[0]
	ss.cs = CipherState{key: outputs[1]}
	ss.hasKey = true
	return nil
}

// EncryptAndHash encrypts plaintext (or passes it through before any key is
// established) and mixes the resulting ciphertext into h.
func (ss *SymmetricState) EncryptAndHash(plaintext []byte) ([]byte, error) {
	if !ss.hasKey {
		ss.MixHash(plaintext)
		return append([]byte{}, plaintext...), nil
	}
	ciphertext, err := ss.cs.Encrypt(ss.h[:], plaintext)
	if err != nil {
		return nil, err
	}
	ss.MixHash(ciphertext)
	return ciphertext, nil
}

// DecryptAndHash reverses EncryptAndHash.
func (ss *SymmetricState) DecryptAndHash(data []byte) ([]byte, error) {
	if !ss.hasKey {
		ss.MixHash(data)
		return append([]byte{}, data...), nil
	}
	plaintext, err := ss.cs.Decrypt(ss.h[:], data)
	if err != nil {
		return nil, err
	}
	ss.MixHash(data)
	return plaintext, nil
}

// Split derives the two directional transport cipher states at the end of
// the handshake. Per NTCP2, the first returned state encrypts the
// initiator's writes and the second the responder's.
func (ss *SymmetricState) Split() (send, recv *CipherState, err error) {
	outputs, err := noisecrypto.HKDF(ss.ck[:], nil, 2)
	if err != nil {
		return nil, nil, err
	}
	return &CipherState{key: outputs[0]}, &CipherState{key: outputs[1]}, nil
}

// HandshakeHash returns the current value of h, used by callers that need
// to bind auxiliary data (like SessionConfirmed's Part 2 payload) to the
// handshake transcript.
func (ss *SymmetricState) HandshakeHash() [32]byte {
	return ss.h
}
