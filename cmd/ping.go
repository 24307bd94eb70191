// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
	"github.com/Thermoquad/deckhand/pkg/deckproto"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by sending PING_DECK and timing PONG_DECK",
	Long: `Send PING_DECK to the deck and wait for the PONG_DECK reply.

This is useful for verifying:
  - The port opens at the configured baud rate
  - The deck firmware is running and answering
  - WebSocket bridges forward traffic in both directions

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	port, connInfo, err := OpenPort(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	if err := port.Open(baudRate); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer deck.ForceFree(port)

	reader, err := port.AcquireReader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Deckhand - Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	pongs := make(chan deckproto.Pong, 1)
	errChan := make(chan error, 1)
	go func() {
		splitter := deckproto.NewLineSplitter(deckproto.MaxLineLength)
		buf := make([]byte, 256)
		for {
			n, err := reader.Read(buf)
			lines, _ := splitter.Feed(buf[:n])
			for _, line := range lines {
				// Ignore everything but the handshake reply
				if msg, perr := deckproto.ParseLine(line); perr == nil {
					if pong, ok := msg.(deckproto.Pong); ok {
						select {
						case pongs <- pong:
						default:
						}
					}
				}
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if err := port.WriteString(deckproto.Ping()); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case pong := <-pongs:
			rtt := time.Since(startTime)
			fmt.Printf("PONG from %q, rtt=%v\n", pong.Name, rtt.Round(time.Millisecond))
			successCount++

		case err := <-errChan:
			fmt.Printf("READ FAILED: %v\n", err)
			failCount += pingCount - i + 1
			i = pingCount

		case <-time.After(time.Duration(pingTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
