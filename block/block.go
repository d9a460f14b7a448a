// Package block implements the NTCP2 data-phase block codec: a sequence of
// tagged, variable-length frames carried inside each AEAD-decrypted data
// phase message.
package block

import (
	"encoding/binary"

	"github.com/samber/oops"
)

// Type identifies a block's wire tag.
type Type byte

const (
	TypeDateTime     Type = 0
	TypeOptions      Type = 1
	TypeRouterInfo   Type = 2
	TypeI2NPMessage  Type = 3
	TypeTermination  Type = 240
	TypePadding      Type = 254
)

// HeaderLen is the size in bytes of a block's tag+size header.
const HeaderLen = 3

// Block is a single decoded NTCP2 block: a tag and its payload.
type Block struct {
	Type Type
	Data []byte
}

// Encode serializes a block as tag(1) || size(2, big-endian) || data.
func Encode(b Block) ([]byte, error) {
	if len(b.Data) > 0xFFFF {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("block").
			With("length", len(b.Data)).
			Errorf("block payload exceeds maximum frame size")
	}
	out := make([]byte, HeaderLen+len(b.Data))
	out[0] = byte(b.Type)
	binary.BigEndian.PutUint16(out[1:3], uint16(len(b.Data)))
	copy(out[3:], b.Data)
	return out, nil
}

// Decode parses a single block from the front of buf and returns it along
// with the number of bytes consumed.
func Decode(buf []byte) (Block, int, error) {
	if len(buf) < HeaderLen {
		return Block{}, 0, oops.
			Code("INVALID_LENGTH").
			In("block").
			With("buffer_length", len(buf)).
			Errorf("buffer too short for block header")
	}
	typ := Type(buf[0])
	size := int(binary.BigEndian.Uint16(buf[1:3]))
	if !isKnownType(typ) {
		return Block{}, 0, oops.
			Code("INVALID_BLOCK_TYPE").
			In("block").
			With("type", typ).
			Errorf("unknown block type")
	}
	if HeaderLen+size > len(buf) {
		return Block{}, 0, oops.
			Code("INVALID_LENGTH").
			In("block").
			With("declared_size", size).
			With("buffer_length", len(buf)).
			Errorf("block declares more data than is available")
	}
	data := make([]byte, size)
	copy(data, buf[HeaderLen:HeaderLen+size])
	return Block{Type: typ, Data: data}, HeaderLen + size, nil
}

func isKnownType(t Type) bool {
	switch t {
	case TypeDateTime, TypeOptions, TypeRouterInfo, TypeI2NPMessage, TypeTermination, TypePadding:
		return true
	default:
		return false
	}
}

// DecodeAll parses every block in buf, in order, failing if any trailing
// bytes do not form a complete block.
func DecodeAll(buf []byte) ([]Block, error) {
	var blocks []Block
	for len(buf) > 0 {
		b, n, err := Decode(buf)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
		buf = buf[n:]
	}
	return blocks, nil
}

// EncodeAll serializes blocks in order into a single buffer.
func EncodeAll(blocks []Block) ([]byte, error) {
	var out []byte
	for _, b := range blocks {
		enc, err := Encode(b)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}
