package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-i2p/ntcp2/manager"
	"github.com/go-i2p/ntcp2/ntcp2"
	"github.com/spf13/cobra"
)

var dialCmd = &cobra.Command{
	Use:   "dial tcp_address remote_static_pub_hex remote_ident_hash_hex remote_aes_iv_hex",
	Short: "Dial a peer's NTCP2 listener and exchange lines over the data phase",
	Args:  cobra.ExactArgs(4),
	RunE:  runDial,
}

func init() {
	rootCmd.AddCommand(dialCmd)
}

func runDial(cmd *cobra.Command, args []string) error {
	addr := args[0]
	staticPub, err := decodeHexKey(args[1])
	if err != nil {
		return fmt.Errorf("parsing remote static pub: %w", err)
	}
	identHash, err := decodeHexKey(args[2])
	if err != nil {
		return fmt.Errorf("parsing remote ident hash: %w", err)
	}
	aesIV, err := decodeHexIV(args[3])
	if err != nil {
		return fmt.Errorf("parsing remote aes iv: %w", err)
	}

	id, err := newLocalIdentity()
	if err != nil {
		return fmt.Errorf("generating local identity: %w", err)
	}
	fmt.Fprintln(os.Stdout, "local identity:", id.String())

	remote := ntcp2.NewStaticRouterInfo(staticPub, identHash, aesIV, nil)
	config := ntcp2.NewConfig()
	mgr := manager.NewSessionManager(config, id.static, id.identHash, id.aesIV, nil)

	ctx, cancel := context.WithTimeout(context.Background(), config.HandshakeTimeout)
	defer cancel()

	session, err := mgr.Dial(ctx, "tcp", addr, remote)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer session.Close()

	fmt.Fprintln(os.Stdout, "handshake complete, state:", session.State())

	go func() {
		scanner := bufio.NewScanner(session)
		for scanner.Scan() {
			fmt.Fprintln(os.Stdout, "<", scanner.Text())
		}
	}()

	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		if _, err := fmt.Fprintln(session, stdin.Text()); err != nil {
			return fmt.Errorf("writing to session: %w", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
