package manager

import (
	"net"

	"github.com/go-i2p/ntcp2/ntcp2"
)

// Listen combines net.Listen and NewListener: a convenience for the common
// case of listening on a fresh socket rather than wrapping one a caller
// already holds.
func (m *SessionManager) Listen(network, addr string, family ntcp2.AddressFamily) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	l, err := m.NewListener(ln, family)
	if err != nil {
		ln.Close()
		return nil, err
	}
	return l, nil
}

// ListenDualStack starts one Listener bound to ipv4Addr and one bound to
// ipv6Addr, matching spec.md §4.7's "two listeners" resource model. Either
// address may be empty to skip that family.
func (m *SessionManager) ListenDualStack(ipv4Addr, ipv6Addr string) (v4, v6 *Listener, err error) {
	if ipv4Addr != "" {
		v4, err = m.Listen("tcp4", ipv4Addr, ntcp2.AddressFamilyIPv4)
		if err != nil {
			return nil, nil, err
		}
	}
	if ipv6Addr != "" {
		v6, err = m.Listen("tcp6", ipv6Addr, ntcp2.AddressFamilyIPv6)
		if err != nil {
			if v4 != nil {
				v4.Close()
			}
			return nil, nil, err
		}
	}
	return v4, v6, nil
}
