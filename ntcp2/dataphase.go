package ntcp2

import (
	"encoding/binary"

	"github.com/go-i2p/ntcp2/handshake"
)

// FrameLengthPrefixSize is the size in bytes of the obfuscated frame length
// prefix in front of every data-phase AEAD frame.
const FrameLengthPrefixSize = 2

// DataPhase applies the per-direction AEAD framing and SipHash
// length-masking NTCP2 uses after the handshake completes. send/recv hold
// the two directional cipher states produced by SymmetricState.Split;
// sendLen/recvLen track each direction's independent SipHash IV chain.
type DataPhase struct {
	send    *handshake.CipherState
	recv    *handshake.CipherState
	sendLen *LengthCodec
	recvLen *LengthCodec
}

// NewDataPhase constructs a DataPhase from the split cipher states and
// length codecs derived during the handshake.
func NewDataPhase(send, recv *handshake.CipherState, sendLen, recvLen *LengthCodec) *DataPhase {
	return &DataPhase{send: send, recv: recv, sendLen: sendLen, recvLen: recvLen}
}

// EncodeFrame seals plaintext (a sequence of already block-encoded NTCP2
// blocks) and returns the obfuscated-length-prefixed wire frame.
func (dp *DataPhase) EncodeFrame(plaintext []byte) ([]byte, error) {
	ciphertext, err := dp.send.Encrypt(nil, plaintext)
	if err != nil {
		return nil, errSocket("ntcp2", err)
	}

	length := uint16(len(ciphertext))
	masked := dp.sendLen.Mask(length)

	out := make([]byte, FrameLengthPrefixSize+len(ciphertext))
	binary.BigEndian.PutUint16(out[:FrameLengthPrefixSize], masked)
	copy(out[FrameLengthPrefixSize:], ciphertext)
	return out, nil
}

// DecodeFrameLength unmasks a received length prefix and returns the
// plaintext ciphertext length the caller must next read off the wire.
func (dp *DataPhase) DecodeFrameLength(prefix [FrameLengthPrefixSize]byte) uint16 {
	masked := binary.BigEndian.Uint16(prefix[:])
	return dp.recvLen.Unmask(masked)
}

// DecodeFrameBody authenticates and decrypts a received ciphertext frame
// whose length was already recovered via DecodeFrameLength.
func (dp *DataPhase) DecodeFrameBody(ciphertext []byte) ([]byte, error) {
	plaintext, err := dp.recv.Decrypt(nil, ciphertext)
	if err != nil {
		return nil, errDecryptFailure("ntcp2", err)
	}
	return plaintext, nil
}
