package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-i2p/ntcp2/manager"
	"github.com/go-i2p/ntcp2/ntcp2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen tcp_address",
	Short: "Accept inbound NTCP2 sessions and echo received frames",
	Args:  cobra.ExactArgs(1),
	RunE:  runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	addr := args[0]

	id, err := newLocalIdentity()
	if err != nil {
		return fmt.Errorf("generating local identity: %w", err)
	}
	fmt.Fprintln(os.Stdout, "local identity:", id.String())

	mgr := manager.NewSessionManager(ntcp2.NewConfig(), id.static, id.identHash, id.aesIV, nil)
	shutdown := manager.NewShutdownManager(mgr, 10*time.Second)

	family := ntcp2.AddressFamilyIPv4
	network := "tcp4"
	if host, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
		if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
			family = ntcp2.AddressFamilyIPv6
			network = "tcp6"
		}
	}

	l, err := mgr.Listen(network, addr, family)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	shutdown.RegisterListener(l)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("ntcp2ctl: shutting down")
		if err := shutdown.Shutdown(); err != nil {
			log.WithError(err).Warn("ntcp2ctl: shutdown reported errors")
		}
	}()

	fmt.Fprintln(os.Stdout, "listening on", l.Addr().String())
	for {
		session, err := l.Accept()
		if err != nil {
			select {
			case <-shutdown.Context().Done():
				shutdown.Wait()
				return nil
			default:
				log.WithError(err).Warn("ntcp2ctl: accept failed")
				continue
			}
		}
		go serveEcho(shutdown.Context(), session)
	}
}

// serveEcho waits for a just-accepted session's handshake to finish, then
// echoes every line it reads back to the peer until the session closes.
func serveEcho(ctx context.Context, session *ntcp2.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if session.State() == ntcp2.StateDataPhase {
			break
		}
		if session.State() == ntcp2.StateTerminated {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	log.WithFields(logrus.Fields{"peer": session.RemoteAddr()}).Info("ntcp2ctl: session ready")
	scanner := bufio.NewScanner(session)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := fmt.Fprintln(session, line); err != nil {
			log.WithError(err).Warn("ntcp2ctl: echo write failed")
			return
		}
	}
}
