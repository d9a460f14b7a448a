package handshake

import (
	"testing"

	"github.com/go-i2p/ntcp2/noisecrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSymmetricStateInitializesFromProtocolName(t *testing.T) {
	ss := NewSymmetricState()
	assert.Equal(t, ss.h, ss.ck)
	assert.False(t, ss.hasKey)
}

func TestEncryptAndHashBeforeKeyIsPassthrough(t *testing.T) {
	ss := NewSymmetricState()
	plaintext := []byte("session request options")
	out, err := ss.EncryptAndHash(plaintext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestMixKeyThenEncryptAndHashProducesCiphertext(t *testing.T) {
	initiator := NewSymmetricState()
	responder := NewSymmetricState()

	dh, err := noisecrypto.RandomBytes(32)
	require.NoError(t, err)

	require.NoError(t, initiator.MixKey(dh))
	require.NoError(t, responder.MixKey(dh))

	plaintext := []byte("options block payload")
	ciphertext, err := initiator.EncryptAndHash(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	recovered, err := responder.DecryptAndHash(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestSplitProducesDistinctDirectionalKeys(t *testing.T) {
	ss := NewSymmetricState()
	dh, err := noisecrypto.RandomBytes(32)
	require.NoError(t, err)
	require.NoError(t, ss.MixKey(dh))

	send, recv, err := ss.Split()
	require.NoError(t, err)
	assert.NotEqual(t, send.key, recv.key)
}

func TestPaddingPolicyRejectsInvalidBounds(t *testing.T) {
	_, err := NewPaddingPolicy("test", -1, 10)
	assert.Error(t, err)

	_, err = NewPaddingPolicy("test", 20, 10)
	assert.Error(t, err)
}

func TestPaddingPolicyGenerateWithinBounds(t *testing.T) {
	pp, err := NewPaddingPolicy("test", 16, 64)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		padding, err := pp.Generate()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(padding), 16)
		assert.LessOrEqual(t, len(padding), 64)
		require.NoError(t, pp.ValidateLength(len(padding)))
	}
}

func TestPaddingPolicyValidateLengthRejectsOutOfBounds(t *testing.T) {
	pp, err := NewPaddingPolicy("test", 16, 64)
	require.NoError(t, err)

	assert.Error(t, pp.ValidateLength(15))
	assert.Error(t, pp.ValidateLength(65))
	assert.NoError(t, pp.ValidateLength(16))
	assert.NoError(t, pp.ValidateLength(64))
}
