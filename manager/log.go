// Package manager owns the session table, the peer blacklist, and the dual
// IPv4/IPv6 listeners a running NTCP2 router needs on top of the per-peer
// ntcp2.Session state machine.
package manager

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
