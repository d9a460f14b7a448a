// Package ntcp2 implements the NTCP2 handshake processors, the obfuscated
// data-phase framing, and the per-peer Session state machine.
package ntcp2

import (
	"encoding/base64"
	"fmt"
	"net"
)

// NTCP2Addr implements net.Addr for NTCP2 sessions, identifying a peer by
// its router identity hash rather than by socket address alone. NTCP2 has
// no destination-hash or session-tag concept at the transport layer, so
// this type carries only what the NTCP2 wire protocol actually addresses:
// a router and a role.
type NTCP2Addr struct {
	underlying net.Addr
	routerHash [32]byte
	role       string
}

// NewNTCP2Addr creates a new NTCP2Addr. role must be "initiator" or
// "responder".
func NewNTCP2Addr(underlying net.Addr, routerHash [32]byte, role string) (*NTCP2Addr, error) {
	if underlying == nil {
		return nil, errInvalidArgument("ntcp2", "underlying address cannot be nil")
	}
	if role != "initiator" && role != "responder" {
		return nil, errInvalidArgument("ntcp2", "role must be 'initiator' or 'responder'")
	}
	return &NTCP2Addr{underlying: underlying, routerHash: routerHash, role: role}, nil
}

// Network returns "ntcp2".
func (na *NTCP2Addr) Network() string { return "ntcp2" }

// String renders "ntcp2://<base64 router hash>/<role>/<underlying addr>".
func (na *NTCP2Addr) String() string {
	if na.underlying == nil {
		return "ntcp2://invalid"
	}
	routerB64 := base64.URLEncoding.EncodeToString(na.routerHash[:])
	return fmt.Sprintf("ntcp2://%s/%s/%s", routerB64, na.role, na.underlying.String())
}

// RouterHash returns the peer's 32-byte router identity hash.
func (na *NTCP2Addr) RouterHash() [32]byte { return na.routerHash }

// Role returns "initiator" or "responder".
func (na *NTCP2Addr) Role() string { return na.role }

// UnderlyingAddr returns the wrapped socket address.
func (na *NTCP2Addr) UnderlyingAddr() net.Addr { return na.underlying }
