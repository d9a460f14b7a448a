package block

import (
	"encoding/binary"

	"github.com/go-i2p/ntcp2/noisecrypto"
	"github.com/samber/oops"
)

// TerminationReason enumerates the single-byte NTCP2 termination reason
// codes carried in a TypeTermination block.
type TerminationReason byte

const (
	TerminationNormalClose         TerminationReason = 0
	TerminationTerminationReceived TerminationReason = 1
	TerminationIdleTimeout         TerminationReason = 2
	TerminationRouterShutdown      TerminationReason = 3
	TerminationDataPhaseAEADFail   TerminationReason = 4
	TerminationIncompatibleOptions TerminationReason = 5
	TerminationIncompatibleSig     TerminationReason = 6
	TerminationClockSkew           TerminationReason = 7
	TerminationPaddingViolation    TerminationReason = 8
	TerminationAEADFramingError    TerminationReason = 9
	TerminationPayloadFormatError  TerminationReason = 10
	TerminationBanned              TerminationReason = 16
)

// NewDateTime builds a TypeDateTime block carrying a 4-byte big-endian unix
// timestamp, per the NTCP2 wire format.
func NewDateTime(unixSeconds uint32) Block {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, unixSeconds)
	return Block{Type: TypeDateTime, Data: data}
}

// ReadDateTime extracts the unix timestamp from a TypeDateTime block.
func ReadDateTime(b Block) (uint32, error) {
	if b.Type != TypeDateTime || len(b.Data) != 4 {
		return 0, oops.
			Code("INVALID_BLOCK_TYPE").
			In("block").
			Errorf("block is not a well-formed date_time block")
	}
	return binary.BigEndian.Uint32(b.Data), nil
}

// NewTermination builds a TypeTermination block. validReceived is the
// number of valid frames received on the session before termination, per
// the NTCP2 termination wire format.
func NewTermination(validReceived uint64, reason TerminationReason, additional []byte) Block {
	data := make([]byte, 9+len(additional))
	binary.BigEndian.PutUint64(data[0:8], validReceived)
	data[8] = byte(reason)
	copy(data[9:], additional)
	return Block{Type: TypeTermination, Data: data}
}

// NewPadding builds a TypePadding block filled with n random bytes.
func NewPadding(n int) (Block, error) {
	data, err := noisecrypto.RandomBytes(n)
	if err != nil {
		return Block{}, err
	}
	return Block{Type: TypePadding, Data: data}, nil
}

// NewOptions builds a TypeOptions block from an already-encoded payload;
// option-block contents beyond the handshake are not otherwise interpreted
// by this package.
func NewOptions(payload []byte) Block {
	return Block{Type: TypeOptions, Data: payload}
}

// NewI2NPMessage builds a TypeI2NPMessage block carrying an opaque,
// already-serialized I2NP message. I2NP message parsing itself is out of
// scope for the transport core.
func NewI2NPMessage(payload []byte) Block {
	return Block{Type: TypeI2NPMessage, Data: payload}
}

// NewRouterInfo builds a TypeRouterInfo block carrying an opaque,
// already-serialized RouterInfo. RouterInfo parsing itself is out of scope
// for the transport core.
func NewRouterInfo(payload []byte) Block {
	return Block{Type: TypeRouterInfo, Data: payload}
}
