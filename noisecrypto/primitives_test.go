package noisecrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairProducesDistinctKeys(t *testing.T) {
	a, err := GenerateKeyPair()
	require.NoError(t, err)
	b, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, a.Private, b.Private)
	assert.NotEqual(t, a.Public, b.Public)
	assert.False(t, isAllZero(a.Public[:]))
}

func TestDHIsSymmetric(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	sharedA, err := DH(alice.Private, bob.Public)
	require.NoError(t, err)
	sharedB, err := DH(bob.Private, alice.Public)
	require.NoError(t, err)

	assert.Equal(t, sharedA, sharedB)
}

func TestDHRejectsDegenerateOutput(t *testing.T) {
	var priv [KeySize]byte
	priv[0] = 1
	var zeroPub [KeySize]byte // the identity point maps to an all-zero shared secret

	_, err := DH(priv, zeroPub)
	require.Error(t, err)
}

func TestHKDFValidatesOutputCount(t *testing.T) {
	ck := make([]byte, 32)
	ikm := make([]byte, 32)

	_, err := HKDF(ck, ikm, 0)
	assert.Error(t, err)
	_, err = HKDF(ck, ikm, 4)
	assert.Error(t, err)

	out, err := HKDF(ck, ikm, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.NotEqual(t, out[0], out[1])
}

func TestAESObfuscateRoundTrip(t *testing.T) {
	var key [32]byte
	var iv [16]byte
	var plaintext [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	copy(iv[:], []byte("0123456789abcdef"))
	copy(plaintext[:], []byte("the quick brown fox jumps over!"))

	ciphertext, err := AESObfuscate(key, iv, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	recovered, err := AESDeobfuscate(key, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestSealOpenRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	ad := []byte("associated-data")
	plaintext := []byte("hello ntcp2")

	ciphertext, err := Seal(key, 0, ad, plaintext)
	require.NoError(t, err)

	recovered, err := Open(key, 0, ad, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)

	_, err = Open(key, 1, ad, ciphertext)
	assert.Error(t, err, "wrong counter must fail authentication")
}

func TestSealNonceVariesWithCounter(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	c0, err := Seal(key, 0, nil, []byte("payload"))
	require.NoError(t, err)
	c1, err := Seal(key, 1, nil, []byte("payload"))
	require.NoError(t, err)

	assert.NotEqual(t, c0, c1)
}

func TestZeroizeClearsSlice(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zeroize(b)
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
}
