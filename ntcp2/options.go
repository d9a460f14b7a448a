package ntcp2

import (
	"encoding/binary"
	"time"
)

// handshakeOptionsLen is the fixed plaintext size of the options block
// carried in SessionRequest and SessionCreated, per SPEC_FULL.md §4.4:
// version(1) + reserved(1) + m3p2_len(2) + pad_len(2) + timestamp(4) +
// reserved(6).
const handshakeOptionsLen = 16

// protocolVersion is the single NTCP2 version this implementation speaks.
const protocolVersion = 2

// HandshakeOptions is the fixed-size options block exchanged in
// SessionRequest and SessionCreated.
type HandshakeOptions struct {
	Version   byte
	M3P2Len   uint16 // SessionConfirmed Part 2 length; 0 outside SessionRequest
	PadLen    uint16
	Timestamp uint32 // unix seconds
}

// encode serializes o to its fixed 16-byte wire form.
func (o HandshakeOptions) encode() []byte {
	buf := make([]byte, handshakeOptionsLen)
	buf[0] = o.Version
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], o.M3P2Len)
	binary.BigEndian.PutUint16(buf[4:6], o.PadLen)
	binary.BigEndian.PutUint32(buf[6:10], o.Timestamp)
	return buf
}

// decodeHandshakeOptions parses a fixed 16-byte options block.
func decodeHandshakeOptions(buf []byte) (HandshakeOptions, error) {
	if len(buf) != handshakeOptionsLen {
		return HandshakeOptions{}, errInvalidLength("ntcp2", len(buf), handshakeOptionsLen)
	}
	return HandshakeOptions{
		Version:   buf[0],
		M3P2Len:   binary.BigEndian.Uint16(buf[2:4]),
		PadLen:    binary.BigEndian.Uint16(buf[4:6]),
		Timestamp: binary.BigEndian.Uint32(buf[6:10]),
	}, nil
}

// validateTimestamp checks a peer-supplied handshake timestamp against the
// local clock within the configured skew tolerance.
func validateTimestamp(ts uint32, tolerance time.Duration, now time.Time) error {
	skew := now.Sub(time.Unix(int64(ts), 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return errInvalidTimestamp("ntcp2", "peer timestamp outside clock skew tolerance")
	}
	return nil
}
