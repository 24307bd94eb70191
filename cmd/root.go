// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Storage and logging flags
	storePath string
	logLevel  string
	logFile   string

	logger = logging.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Companion for serial macro decks",
	Long: `Deckhand - A CLI tool for driving a serial macro deck from the host.

Finds the deck among the serial ports, keeps its pages and buttons in sync,
performs button actions on the host and uploads the configuration and button
images to the deck.

Connection modes:
  Auto:      no flags, every USB serial port is probed
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the DECK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

State (configuration, upload manifest, device host) lives in a CBOR file at
--store, $DECKHAND_STORE or the user config directory.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (default: probe all USB ports)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "State file (default $DECKHAND_STORE or user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a file instead of stderr")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	opts := logging.Options{Level: logLevel, File: logFile}
	// The live TUI owns the terminal; its logs go to a file or nowhere.
	if cmd.Name() == "live" && logFile == "" {
		logger = logging.Nop()
		return nil
	}
	l, err := logging.New(opts)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// Execute runs the root command
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}
