package cmd

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/go-i2p/ntcp2/noisecrypto"
)

// localIdentity bundles the tuple a real RouterInfo would publish for this
// router's NTCP2 address: a static keypair, the identity hash used as the
// AES obfuscation key, and the published AES IV. ntcp2ctl has no
// RouterInfo parser, so it fabricates one per invocation.
type localIdentity struct {
	static    noisecrypto.KeyPair
	identHash [32]byte
	aesIV     [16]byte
}

func newLocalIdentity() (*localIdentity, error) {
	static, err := noisecrypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	ih := sha256.Sum256(static.Public[:])
	var iv [16]byte
	if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
		return nil, err
	}
	return &localIdentity{static: static, identHash: ih, aesIV: iv}, nil
}

func (id *localIdentity) String() string {
	return "static_pub=" + hex.EncodeToString(id.static.Public[:]) +
		" ident_hash=" + hex.EncodeToString(id.identHash[:]) +
		" aes_iv=" + hex.EncodeToString(id.aesIV[:])
}

func decodeHexKey(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func decodeHexIV(s string) ([16]byte, error) {
	var out [16]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
