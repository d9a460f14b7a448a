// Package noisecrypto provides the raw cryptographic primitives NTCP2 needs:
// X25519 key agreement, AES-256-CBC ephemeral-key obfuscation, HKDF key
// derivation and ChaCha20-Poly1305 AEAD sealing. Nothing in this package
// knows about NTCP2 message framing; it is the leaf layer the handshake and
// block-codec packages build on.
package noisecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size in bytes of an X25519 public or private key.
	KeySize = 32
	// AEADTagSize is the size in bytes of a Poly1305 authentication tag.
	AEADTagSize = chacha20poly1305.Overhead
	// AEADNonceSize is the size in bytes of the ChaCha20-Poly1305 nonce.
	AEADNonceSize = chacha20poly1305.NonceSize
)

// KeyPair is an X25519 static or ephemeral key pair.
type KeyPair struct {
	Private [KeySize]byte
	Public  [KeySize]byte
}

// GenerateKeyPair generates a fresh X25519 key pair using crypto/rand.
func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return KeyPair{}, oops.
			Code("KEYGEN_FAILED").
			In("noisecrypto").
			Wrapf(err, "failed to read random bytes for key pair")
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, oops.
			Code("KEYGEN_FAILED").
			In("noisecrypto").
			Wrapf(err, "failed to derive public key")
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// DH performs an X25519 scalar multiplication of priv against pub. It
// rejects the all-zero result, which only arises from a small-order public
// key and must never be accepted as a valid shared secret.
func DH(priv, pub [KeySize]byte) ([KeySize]byte, error) {
	var out [KeySize]byte
	shared, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return out, oops.
			Code("DECRYPT_FAILURE").
			In("noisecrypto").
			Wrapf(err, "x25519 scalar multiplication failed")
	}
	copy(out[:], shared)
	if isAllZero(out[:]) {
		return out, oops.
			Code("DECRYPT_FAILURE").
			In("noisecrypto").
			Errorf("x25519 output is all-zero, peer key is degenerate")
	}
	return out, nil
}

func isAllZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}

// HKDF derives n*32 bytes of output keying material from chainKey and
// inputKeyMaterial using HKDF-Expand over HMAC-SHA-256 with no info string,
// matching the Noise Protocol Framework's HKDF helper. n must be 1, 2 or 3.
func HKDF(chainKey, inputKeyMaterial []byte, n int) ([][KeySize]byte, error) {
	if n < 1 || n > 3 {
		return nil, oops.
			Code("INVALID_ARGUMENT").
			In("noisecrypto").
			With("n", n).
			Errorf("hkdf output count must be 1, 2 or 3")
	}
	reader := hkdf.New(newSHA256, inputKeyMaterial, chainKey, nil)
	outputs := make([][KeySize]byte, n)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(reader, outputs[i][:]); err != nil {
			return nil, oops.
				Code("DECRYPT_FAILURE").
				In("noisecrypto").
				Wrapf(err, "hkdf expand failed")
		}
	}
	return outputs, nil
}

// AESObfuscate encrypts a single 32-byte ephemeral public key with
// AES-256-CBC, no padding (the plaintext is already block-aligned). key and
// iv are both 32 and 16 bytes respectively for the key, 16 for the iv.
func AESObfuscate(key [32]byte, iv [16]byte, plaintext [32]byte) ([32]byte, error) {
	var out [32]byte
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return out, oops.
			Code("INVALID_ARGUMENT").
			In("noisecrypto").
			Wrapf(err, "failed to construct aes cipher")
	}
	mode := cipher.NewCBCEncrypter(block, iv[:])
	mode.CryptBlocks(out[:], plaintext[:])
	return out, nil
}

// AESDeobfuscate reverses AESObfuscate.
func AESDeobfuscate(key [32]byte, iv [16]byte, ciphertext [32]byte) ([32]byte, error) {
	var out [32]byte
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return out, oops.
			Code("INVALID_ARGUMENT").
			In("noisecrypto").
			Wrapf(err, "failed to construct aes cipher")
	}
	mode := cipher.NewCBCDecrypter(block, iv[:])
	mode.CryptBlocks(out[:], ciphertext[:])
	return out, nil
}

// Seal encrypts and authenticates plaintext with ChaCha20-Poly1305, using a
// nonce built from a little-endian 64-bit counter as the NTCP2 spec
// requires: 4 zero bytes followed by the 8-byte counter.
func Seal(key [32]byte, counter uint64, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, oops.
			Code("INVALID_ARGUMENT").
			In("noisecrypto").
			Wrapf(err, "failed to construct chacha20poly1305 aead")
	}
	nonce := counterNonce(counter)
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

// Open decrypts and authenticates ciphertext with ChaCha20-Poly1305. A
// failed authentication check is reported as DecryptFailure.
func Open(key [32]byte, counter uint64, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, oops.
			Code("INVALID_ARGUMENT").
			In("noisecrypto").
			Wrapf(err, "failed to construct chacha20poly1305 aead")
	}
	nonce := counterNonce(counter)
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, oops.
			Code("DECRYPT_FAILURE").
			In("noisecrypto").
			With("counter", counter).
			Wrapf(err, "aead authentication failed")
	}
	return plaintext, nil
}

func counterNonce(counter uint64) [AEADNonceSize]byte {
	var nonce [AEADNonceSize]byte
	for i := 0; i < 8; i++ {
		nonce[4+i] = byte(counter >> (8 * i))
	}
	return nonce
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, oops.
			Code("SOCKET_ERROR").
			In("noisecrypto").
			Wrapf(err, "failed to read random bytes")
	}
	return b, nil
}

// Zeroize overwrites b with zeros in place. It does not prevent the Go
// runtime from having copied the data elsewhere, but it closes the window
// for the most common case: a key no longer needed sitting in a live slice.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
