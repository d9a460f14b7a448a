package ntcp2

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// LengthCodec masks and unmasks the 2-byte data-phase frame-length prefix
// with SipHash-2-4, chaining the IV across frames: each call's hash output
// both produces the mask and becomes the IV fed into the next call. This
// replaces a counter-driven mask (which only the local side could
// reproduce without also transmitting the counter) with the spec's
// self-synchronizing scheme, where both peers advance the same chain in
// lockstep as frames are sent and received.
type LengthCodec struct {
	k1, k2 uint64
	iv     uint64
}

// NewLengthCodec creates a length codec seeded with the SipHash keys and
// initial IV derived from the data-phase KDF.
func NewLengthCodec(k1, k2, initialIV uint64) *LengthCodec {
	return &LengthCodec{k1: k1, k2: k2, iv: initialIV}
}

// nextMask advances the chain and returns the next 16-bit mask.
func (lc *LengthCodec) nextMask() uint16 {
	var ivBytes [8]byte
	binary.LittleEndian.PutUint64(ivBytes[:], lc.iv)
	h := siphash.Hash(lc.k1, lc.k2, ivBytes[:])
	lc.iv = h
	return uint16(h)
}

// Mask obfuscates a plaintext frame length for transmission.
func (lc *LengthCodec) Mask(length uint16) uint16 {
	return length ^ lc.nextMask()
}

// Unmask recovers a plaintext frame length from an obfuscated one. Masking
// is XOR-based and therefore symmetric, but the two directions are never
// interchangeable: each LengthCodec instance only ever tracks one
// direction's chain.
func (lc *LengthCodec) Unmask(obfuscated uint16) uint16 {
	return obfuscated ^ lc.nextMask()
}
