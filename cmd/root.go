// Package cmd implements ntcp2ctl, a thin operator CLI that exercises the
// ntcp2/manager core from a terminal: generate a throwaway router identity,
// listen for inbound sessions, or dial an existing listener. It is ambient
// tooling around the core, not a RouterInfo/NetDb/SAM implementation.
package cmd

import (
	"fmt"
	"os"

	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	log     = logger.GetGoI2PLogger()
)

var rootCmd = &cobra.Command{
	Use:   "ntcp2ctl",
	Short: "Drive the NTCP2 transport core from the command line",
	Long: `ntcp2ctl is a demonstration and diagnostic CLI for the NTCP2
session core: it generates throwaway static identities, listens for
inbound handshakes, and dials outbound ones, reporting each session
once its handshake completes.

It does not implement RouterInfo parsing, NetDb, or reseed; the
identities it prints and consumes are the minimal StaticPublicKey,
IdentHash, and AesIV tuple the handshake needs.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log a debug message at startup (does not change the log level)")
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "ntcp2ctl: reading config file: %v\n", err)
		}
	}
	viper.SetEnvPrefix("ntcp2ctl")
	viper.AutomaticEnv()
	if verbose {
		log.Debug("verbose logging enabled")
	}
}
