// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

var discoverTimeout int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Probe serial ports for a macro deck",
	Long: `Send PING_DECK to every candidate port and wait for PONG_DECK.

Each port is opened, pinged and closed again in turn. A port answers as a
deck when the reported name contains "smartdeck" or "smart deck".

Examples:
  # Probe every USB serial port
  deckhand discover

  # Probe one port with a longer handshake window
  deckhand discover --port /dev/ttyACM0 --timeout 1000

Exit codes:
  0 - At least one deck found
  1 - No deck answered
  2 - Connection error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 300, "Handshake timeout per port in milliseconds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	registry, connInfo, err := OpenRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	ports, err := registry.List(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Deckhand - Device Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d ms per port\n\n", discoverTimeout)

	id := deck.NewIdentifier(baudRate, time.Duration(discoverTimeout)*time.Millisecond, logger.Named("identify"))

	found := 0
	for _, p := range ports {
		fmt.Printf("%s: ", p.Name())
		name, ok := id.Identify(cmd.Context(), p)
		switch {
		case !ok:
			fmt.Printf("no answer\n")
		case deck.IsDeckName(name):
			found++
			fmt.Printf("DECK %q\n", name)
			printPortDetails(p.Info())
		default:
			fmt.Printf("answered as %q (not a deck)\n", name)
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Ports probed: %d\n", len(ports))
	fmt.Printf("Decks found: %d\n", found)

	if found == 0 {
		fmt.Printf("No deck discovered. Check the cable and device power.\n")
		os.Exit(1)
	}
	return nil
}

func printPortDetails(info deck.PortInfo) {
	if !info.IsUSB {
		return
	}
	fmt.Printf("  USB ID: %s:%s\n", info.VID, info.PID)
	if info.Product != "" {
		fmt.Printf("  Product: %s\n", info.Product)
	}
	if info.Serial != "" {
		fmt.Printf("  Serial: %s\n", info.Serial)
	}
}
