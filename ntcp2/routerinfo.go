package ntcp2

import "net"

// AddressFamily distinguishes the two socket families the manager listens
// on (§2 C7).
type AddressFamily int

const (
	AddressFamilyIPv4 AddressFamily = iota
	AddressFamilyIPv6
)

// NetAddr is one published NTCP2 endpoint for a router.
type NetAddr struct {
	IP     net.IP
	Port   uint16
	Family AddressFamily
}

// RouterInfoProvider is the minimal view of a remote router's published
// identity this transport core needs. Parsing and signing a full I2P
// RouterInfo document is out of scope; callers adapt their own RouterInfo
// type to this interface.
type RouterInfoProvider interface {
	// StaticPublicKey is the router's long-term X25519 static public key.
	StaticPublicKey() [32]byte
	// IdentHash is SHA-256 of the router's full identity, used as the AES
	// obfuscation key for SessionRequest/SessionCreated.
	IdentHash() [32]byte
	// AesIV is the 16-byte IV published for this router's NTCP2 address,
	// used to obfuscate the first ephemeral key sent to it.
	AesIV() [16]byte
	// Addresses lists the router's published NTCP2 endpoints.
	Addresses() []NetAddr
}

// StaticRouterInfo is a fixed, in-memory RouterInfoProvider for tests and
// the CLI demo. It does not parse or validate an I2P RouterInfo document.
type StaticRouterInfo struct {
	staticPub [32]byte
	identHash [32]byte
	aesIV     [16]byte
	addresses []NetAddr
}

// NewStaticRouterInfo builds a StaticRouterInfo from already-known values.
func NewStaticRouterInfo(staticPub, identHash [32]byte, aesIV [16]byte, addrs []NetAddr) *StaticRouterInfo {
	return &StaticRouterInfo{
		staticPub: staticPub,
		identHash: identHash,
		aesIV:     aesIV,
		addresses: append([]NetAddr{}, addrs...),
	}
}

func (s *StaticRouterInfo) StaticPublicKey() [32]byte { return s.staticPub }
func (s *StaticRouterInfo) IdentHash() [32]byte       { return s.identHash }
func (s *StaticRouterInfo) AesIV() [16]byte           { return s.aesIV }
func (s *StaticRouterInfo) Addresses() []NetAddr      { return append([]NetAddr{}, s.addresses...) }

// EncodeRouterInfoBlob serializes a minimal RouterInfo blob for the
// SessionConfirmed Part 2 payload: the router's static public key followed
// by arbitrary caller-supplied trailing data (addresses, capabilities,
// certificates). Full RouterInfo parsing and signing is out of scope; this
// is the wire convention the responder-side identity check in
// Session.verifyInitiatorIdentity relies on.
func EncodeRouterInfoBlob(staticPub [32]byte, rest []byte) []byte {
	out := make([]byte, 32+len(rest))
	copy(out, staticPub[:])
	copy(out[32:], rest)
	return out
}
