// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
	"github.com/Thermoquad/deckhand/pkg/deckproto"
)

var (
	rawShowAll    bool
	rawStatsEvery int
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display the deck's line traffic in human-readable format",
	Long: `Passively read lines from the deck and print each one decoded, with a
timestamp. Nothing is sent to the device.

Malformed and overlong lines are highlighted. On exit (Ctrl+C) a statistics
summary is printed. Use --stats-interval to print it periodically as well.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawShowAll, "show-all", true, "Show valid lines (false shows only errors)")
	rawLogCmd.Flags().IntVar(&rawStatsEvery, "stats-interval", 0, "Statistics interval in seconds (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port, connInfo, err := OpenPort(ctx)
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
		return err
	}

	fmt.Printf("Deckhand - Raw Line Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := deckproto.NewStatistics()
	defer func() { fmt.Printf("\n%s", stats) }()

	// Cancelling the reader unblocks the read loop on Ctrl+C
	go func() {
		<-ctx.Done()
		reader.Cancel()
	}()

	var tick <-chan time.Time
	if rawStatsEvery > 0 {
		ticker := time.NewTicker(time.Duration(rawStatsEvery) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	return readLines(ctx, reader, tick, func(line string, overflow bool) {
		if overflow {
			stats.RecordOverflow()
			printLineError(time.Now(), deckproto.ErrLineTooLong)
			return
		}
		msg, err := deckproto.ParseLine(line)
		stats.Update(msg, err)
		logger.Debugw("line", "line", line, "error", err)
		switch {
		case err != nil:
			printLineError(time.Now(), err)
			fmt.Printf("  >>> %q\n", line)
		case rawShowAll:
			fmt.Print(deckproto.FormatLogLine(time.Now(), msg))
		}
	}, func() { fmt.Printf("\n%s\n", stats) })
}

// readLines feeds the reader through a line splitter until ctx ends or
// the connection closes.
func readLines(ctx context.Context, r *deck.Reader, tick <-chan time.Time, onLine func(line string, overflow bool), onTick func()) error {
	splitter := deckproto.NewLineSplitter(deckproto.MaxLineLength)
	chunks := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			onTick()
		case err := <-readErr:
			if errors.Is(err, deck.ErrReaderCancelled) || errors.Is(err, ErrConnectionClosed) {
				fmt.Printf("Connection closed\n")
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		case chunk := <-chunks:
			lines, err := splitter.Feed(chunk)
			for _, line := range lines {
				onLine(line, false)
			}
			if errors.Is(err, deckproto.ErrLineTooLong) {
				onLine("", true)
			}
		}
	}
}

// printLineError prints a parse failure in highlighted format
func printLineError(at time.Time, err error) {
	fmt.Printf("[%s] \033[1;31mERROR:\033[0m %v\n", at.Format("15:04:05.000"), err)
}
