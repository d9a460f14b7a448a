package ntcp2

import (
	"github.com/go-i2p/ntcp2/handshake"
	"github.com/go-i2p/ntcp2/noisecrypto"
)

const staticKeyCiphertextLen = 32 + noisecrypto.AEADTagSize

// WriteSessionConfirmed builds the initiator's third and final handshake
// message: the initiator's AEAD-encrypted static public key (token "s",
// never AES-obfuscated — by message 3 the transport is already hidden
// behind the established cipher state), followed by the "se" DH and an
// AEAD-encrypted Part 2 payload of caller-supplied blocks. Part 2's length
// must equal the m3p2_len the initiator declared in SessionRequest;
// callers are responsible for sizing part2Payload accordingly.
func WriteSessionConfirmed(
	ss *handshake.SymmetricState,
	localStatic noisecrypto.KeyPair,
	responderEphemeralPub [32]byte,
	part2Payload []byte,
) (wire []byte, err error) {
	staticCiphertext, err := ss.EncryptAndHash(localStatic.Public[:])
	if err != nil {
		return nil, err
	}

	dh, err := noisecrypto.DH(localStatic.Private, responderEphemeralPub)
	if err != nil {
		return nil, err
	}
	if err := ss.MixKey(dh[:]); err != nil {
		return nil, err
	}

	payloadCiphertext, err := ss.EncryptAndHash(part2Payload)
	if err != nil {
		return nil, err
	}

	wire = make([]byte, 0, len(staticCiphertext)+len(payloadCiphertext))
	wire = append(wire, staticCiphertext...)
	wire = append(wire, payloadCiphertext...)
	return wire, nil
}

// ReadSessionConfirmed parses and validates the responder-side view of a
// SessionConfirmed message. expectedM3P2Len is the on-the-wire ciphertext
// length (plaintext plus the AEAD tag) and must equal the m3p2_len the
// initiator declared in its SessionRequest; a mismatch is InvalidM3P2.
func ReadSessionConfirmed(
	ss *handshake.SymmetricState,
	responderEphemeral noisecrypto.KeyPair,
	wire []byte,
	expectedM3P2Len int,
) (initiatorStaticPub [32]byte, part2Payload []byte, err error) {
	if len(wire) < staticKeyCiphertextLen {
		return initiatorStaticPub, nil, errInvalidLength("ntcp2", len(wire), staticKeyCiphertextLen)
	}

	staticPlaintext, err := ss.DecryptAndHash(wire[:staticKeyCiphertextLen])
	if err != nil {
		return initiatorStaticPub, nil, errDecryptFailure("ntcp2", err)
	}
	copy(initiatorStaticPub[:], staticPlaintext)

	dh, err := noisecrypto.DH(responderEphemeral.Private, initiatorStaticPub)
	if err != nil {
		return initiatorStaticPub, nil, err
	}
	if err := ss.MixKey(dh[:]); err != nil {
		return initiatorStaticPub, nil, err
	}

	rest := wire[staticKeyCiphertextLen:]
	if len(rest) != expectedM3P2Len {
		return initiatorStaticPub, nil, errInvalidM3P2("ntcp2", "SessionConfirmed Part 2 length does not match the length declared in SessionRequest")
	}

	part2Payload, err = ss.DecryptAndHash(rest)
	if err != nil {
		return initiatorStaticPub, nil, errDecryptFailure("ntcp2", err)
	}

	return initiatorStaticPub, part2Payload, nil
}
