package ntcp2

import (
	"time"

	"github.com/go-i2p/ntcp2/handshake"
	"github.com/go-i2p/ntcp2/noisecrypto"
)

// sessionRequestCiphertextLen is the size of the AEAD-encrypted options
// block: 16 bytes of plaintext plus a 16-byte Poly1305 tag.
const sessionRequestCiphertextLen = handshakeOptionsLen + noisecrypto.AEADTagSize

// WriteSessionRequest builds the initiator's first handshake message: an
// AES-obfuscated ephemeral public key, followed by the AEAD-encrypted
// options block, followed by raw random padding. opts.PadLen is overwritten
// with the actual padding length chosen by padding before the options block
// is encoded, so the value the peer authenticates always matches the wire.
// The padding itself is mixed into the running hash directly after the
// Noise message proper, a step a generic Noise library's WriteMessage does
// not expose.
func WriteSessionRequest(
	ss *handshake.SymmetricState,
	ephemeral noisecrypto.KeyPair,
	responderStaticPub [32]byte,
	identHash [32]byte,
	iv [16]byte,
	opts HandshakeOptions,
	padding *handshake.PaddingPolicy,
) (wire []byte, outIV [16]byte, err error) {
	ss.MixHash(ephemeral.Public[:])

	dh, err := noisecrypto.DH(ephemeral.Private, responderStaticPub)
	if err != nil {
		return nil, outIV, err
	}
	if err := ss.MixKey(dh[:]); err != nil {
		return nil, outIV, err
	}

	pad, err := padding.Generate()
	if err != nil {
		return nil, outIV, err
	}
	opts.PadLen = uint16(len(pad))

	ciphertext, err := ss.EncryptAndHash(opts.encode())
	if err != nil {
		return nil, outIV, err
	}
	ss.MixHash(pad)

	obfuscated, err := obfuscateEphemeral(identHash, iv, ephemeral.Public)
	if err != nil {
		return nil, outIV, err
	}

	wire = make([]byte, 0, 32+len(ciphertext)+len(pad))
	wire = append(wire, obfuscated[:]...)
	wire = append(wire, ciphertext...)
	wire = append(wire, pad...)
	return wire, chainIV(obfuscated), nil
}

// ReadSessionRequest parses and validates a responder-side SessionRequest
// message. now is injected for deterministic timestamp-skew testing.
func ReadSessionRequest(
	ss *handshake.SymmetricState,
	localStaticPriv [32]byte,
	identHash [32]byte,
	iv [16]byte,
	wire []byte,
	padding *handshake.PaddingPolicy,
	clockSkewTolerance time.Duration,
	now time.Time,
) (ephemeralPub [32]byte, opts HandshakeOptions, outIV [16]byte, err error) {
	if len(wire) < 32+sessionRequestCiphertextLen {
		return ephemeralPub, opts, outIV, errInvalidLength("ntcp2", len(wire), 32+sessionRequestCiphertextLen)
	}

	var obfuscated [32]byte
	copy(obfuscated[:], wire[:32])

	ephemeralPub, err = deobfuscateEphemeral(identHash, iv, obfuscated)
	if err != nil {
		return ephemeralPub, opts, outIV, err
	}

	ss.MixHash(ephemeralPub[:])

	dh, err := noisecrypto.DH(localStaticPriv, ephemeralPub)
	if err != nil {
		return ephemeralPub, opts, outIV, err
	}
	if err := ss.MixKey(dh[:]); err != nil {
		return ephemeralPub, opts, outIV, err
	}

	ciphertext := wire[32 : 32+sessionRequestCiphertextLen]
	plaintext, err := ss.DecryptAndHash(ciphertext)
	if err != nil {
		return ephemeralPub, opts, outIV, errDecryptFailure("ntcp2", err)
	}

	opts, err = decodeHandshakeOptions(plaintext)
	if err != nil {
		return ephemeralPub, opts, outIV, err
	}

	if err := padding.ValidateLength(int(opts.PadLen)); err != nil {
		return ephemeralPub, opts, outIV, err
	}

	if err := validateTimestamp(opts.Timestamp, clockSkewTolerance, now); err != nil {
		return ephemeralPub, opts, outIV, err
	}

	rest := wire[32+sessionRequestCiphertextLen:]
	if len(rest) != int(opts.PadLen) {
		return ephemeralPub, opts, outIV, errInvalidPadding("ntcp2", "declared padding length does not match message size")
	}
	ss.MixHash(rest)

	return ephemeralPub, opts, chainIV(obfuscated), nil
}
