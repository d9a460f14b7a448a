package ntcp2

import (
	"time"

	"github.com/go-i2p/ntcp2/handshake"
	"github.com/go-i2p/ntcp2/noisecrypto"
)

const sessionCreatedCiphertextLen = handshakeOptionsLen + noisecrypto.AEADTagSize

// WriteSessionCreated builds the responder's second handshake message: an
// AES-obfuscated ephemeral public key (IV chained from the SessionRequest
// ciphertext tail), an AEAD-encrypted options block, and raw padding.
func WriteSessionCreated(
	ss *handshake.SymmetricState,
	ephemeral noisecrypto.KeyPair,
	initiatorEphemeralPub [32]byte,
	identHash [32]byte,
	chainedIV [16]byte,
	opts HandshakeOptions,
	padding *handshake.PaddingPolicy,
) (wire []byte, outIV [16]byte, err error) {
	ss.MixHash(ephemeral.Public[:])

	dh, err := noisecrypto.DH(ephemeral.Private, initiatorEphemeralPub)
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

	obfuscated, err := obfuscateEphemeral(identHash, chainedIV, ephemeral.Public)
	if err != nil {
		return nil, outIV, err
	}

	wire = make([]byte, 0, 32+len(ciphertext)+len(pad))
	wire = append(wire, obfuscated[:]...)
	wire = append(wire, ciphertext...)
	wire = append(wire, pad...)
	return wire, chainIV(obfuscated), nil
}

// ReadSessionCreated parses and validates the initiator-side view of a
// SessionCreated message.
func ReadSessionCreated(
	ss *handshake.SymmetricState,
	initiatorEphemeral noisecrypto.KeyPair,
	identHash [32]byte,
	chainedIV [16]byte,
	wire []byte,
	padding *handshake.PaddingPolicy,
	clockSkewTolerance time.Duration,
	now time.Time,
) (responderEphemeralPub [32]byte, opts HandshakeOptions, outIV [16]byte, err error) {
	if len(wire) < 32+sessionCreatedCiphertextLen {
		return responderEphemeralPub, opts, outIV, errInvalidLength("ntcp2", len(wire), 32+sessionCreatedCiphertextLen)
	}

	var obfuscated [32]byte
	copy(obfuscated[:], wire[:32])

	responderEphemeralPub, err = deobfuscateEphemeral(identHash, chainedIV, obfuscated)
	if err != nil {
		return responderEphemeralPub, opts, outIV, err
	}

	ss.MixHash(responderEphemeralPub[:])

	dh, err := noisecrypto.DH(initiatorEphemeral.Private, responderEphemeralPub)
	if err != nil {
		return responderEphemeralPub, opts, outIV, err
	}
	if err := ss.MixKey(dh[:]); err != nil {
		return responderEphemeralPub, opts, outIV, err
	}

	ciphertext := wire[32 : 32+sessionCreatedCiphertextLen]
	plaintext, err := ss.DecryptAndHash(ciphertext)
	if err != nil {
		return responderEphemeralPub, opts, outIV, errDecryptFailure("ntcp2", err)
	}

	opts, err = decodeHandshakeOptions(plaintext)
	if err != nil {
		return responderEphemeralPub, opts, outIV, err
	}

	if err := padding.ValidateLength(int(opts.PadLen)); err != nil {
		return responderEphemeralPub, opts, outIV, err
	}

	if err := validateTimestamp(opts.Timestamp, clockSkewTolerance, now); err != nil {
		return responderEphemeralPub, opts, outIV, err
	}

	rest := wire[32+sessionCreatedCiphertextLen:]
	if len(rest) != int(opts.PadLen) {
		return responderEphemeralPub, opts, outIV, errInvalidPadding("ntcp2", "declared padding length does not match message size")
	}
	ss.MixHash(rest)

	return responderEphemeralPub, opts, chainIV(obfuscated), nil
}
