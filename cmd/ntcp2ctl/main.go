// Command ntcp2ctl drives the NTCP2 session core from a terminal: it can
// listen for inbound handshakes or dial an existing listener, printing
// session state and echoing data-phase traffic.
package main

import "github.com/go-i2p/ntcp2/cmd"

func main() {
	cmd.Execute()
}
