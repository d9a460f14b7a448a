package handshake

import (
	"github.com/go-i2p/ntcp2/noisecrypto"
	"github.com/samber/oops"
)

// PaddingPolicy validates and generates the random padding NTCP2 mixes into
// each handshake message's un-authenticated tail. Unlike a generic
// length-prefixed padding scheme, NTCP2 padding carries no length prefix of
// its own: the peer learns the padding length from the message's options
// block (pad_len) and the length is itself covered by MixHash.
type PaddingPolicy struct {
	name       string
	minPadding int
	maxPadding int
}

// NewPaddingPolicy creates a padding policy bounded by [minPadding,
// maxPadding] inclusive.
func NewPaddingPolicy(name string, minPadding, maxPadding int) (*PaddingPolicy, error) {
	if minPadding < 0 {
		return nil, oops.
			Code("INVALID_PADDING").
			In("handshake").
			With("min_padding", minPadding).
			Errorf("minimum padding cannot be negative")
	}

	if maxPadding < minPadding {
		return nil, oops.
			Code("INVALID_PADDING").
			In("handshake").
			With("min_padding", minPadding).
			With("max_padding", maxPadding).
			Errorf("maximum padding cannot be less than minimum padding")
	}

	return &PaddingPolicy{
		name:       name,
		minPadding: minPadding,
		maxPadding: maxPadding,
	}, nil
}

// Generate returns cryptographically random padding bytes whose length is
// uniformly chosen within [minPadding, maxPadding].
func (pp *PaddingPolicy) Generate() ([]byte, error) {
	if pp.maxPadding == 0 {
		return nil, nil
	}
	size := pp.minPadding
	if pp.maxPadding > pp.minPadding {
		span := pp.maxPadding - pp.minPadding + 1
		n, err := noisecrypto.RandomBytes(4)
		if err != nil {
			return nil, err
		}
		offset := int(uint32(n[0])<<24|uint32(n[1])<<16|uint32(n[2])<<8|uint32(n[3])) % span
		size = pp.minPadding + offset
	}
	return noisecrypto.RandomBytes(size)
}

// ValidateLength reports whether a received padding length falls within
// this policy's configured bounds. NTCP2 terminates the connection with
// InvalidPadding when it does not.
func (pp *PaddingPolicy) ValidateLength(n int) error {
	if n < pp.minPadding || n > pp.maxPadding {
		return oops.
			Code("INVALID_PADDING").
			In("handshake").
			With("padding_length", n).
			With("min_padding", pp.minPadding).
			With("max_padding", pp.maxPadding).
			With("modifier_name", pp.name).
			Errorf("padding length out of configured bounds")
	}
	return nil
}

// Name returns the policy's name for logging and debugging.
func (pp *PaddingPolicy) Name() string {
	return pp.name
}
