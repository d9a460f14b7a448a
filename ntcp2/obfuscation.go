package ntcp2

import (
	"github.com/go-i2p/ntcp2/noisecrypto"
)

// obfuscateEphemeral encrypts a 32-byte ephemeral public key with
// AES-256-CBC under the responder's IdentHash, chaining the IV as the spec
// requires: SessionRequest uses the published AesIV, SessionCreated uses
// the 16-byte tail of SessionRequest's ciphertext as its IV.
func obfuscateEphemeral(identHash [32]byte, iv [16]byte, ephemeralPub [32]byte) ([32]byte, error) {
	return noisecrypto.AESObfuscate(identHash, iv, ephemeralPub)
}

// deobfuscateEphemeral reverses obfuscateEphemeral.
func deobfuscateEphemeral(identHash [32]byte, iv [16]byte, ciphertext [32]byte) ([32]byte, error) {
	return noisecrypto.AESDeobfuscate(identHash, iv, ciphertext)
}

// chainIV extracts the 16-byte IV that chains into the next obfuscated
// message, taken from the tail of the AES-CBC ciphertext just produced or
// consumed.
func chainIV(ciphertext [32]byte) [16]byte {
	var iv [16]byte
	copy(iv[:], ciphertext[16:])
	return iv
}
