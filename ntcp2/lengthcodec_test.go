package ntcp2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLengthCodecMaskUnmaskRoundTrip(t *testing.T) {
	sender := NewLengthCodec(1, 2, 3)
	receiver := NewLengthCodec(1, 2, 3)

	for _, length := range []uint16{0, 1, 1000, 65535} {
		masked := sender.Mask(length)
		unmasked := receiver.Unmask(masked)
		assert.Equal(t, length, unmasked)
	}
}

func TestLengthCodecChainsAcrossCalls(t *testing.T) {
	lc := NewLengthCodec(1, 2, 3)
	first := lc.Mask(100)
	second := lc.Mask(100)
	assert.NotEqual(t, first, second, "mask must advance with each frame")
}

func TestLengthCodecDirectionsAreIndependent(t *testing.T) {
	a := NewLengthCodec(1, 2, 3)
	b := NewLengthCodec(4, 5, 6)
	assert.NotEqual(t, a.Mask(42), b.Mask(42))
}
