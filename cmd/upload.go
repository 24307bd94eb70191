// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

var (
	uploadFull    bool
	uploadChanged bool
	uploadWait    int
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the configuration and button images over serial",
	Long: `Export the configuration, compare it against the manifest of the last
successful upload and send the selected files to the deck.

Without --changed or --full the plan is shown and the choice is read from
the terminal. Once the transfer starts it runs to completion even if
interrupted. The deck reboots afterwards; use --wait to wait for it to
answer again.

Exit codes:
  0 - Upload finished or nothing to upload
  1 - Upload failed or cancelled
  2 - Connection error`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolVar(&uploadFull, "full", false, "Send every file without asking")
	uploadCmd.Flags().BoolVar(&uploadChanged, "changed", false, "Send only changed files without asking")
	uploadCmd.Flags().IntVar(&uploadWait, "wait", 0, "Seconds to wait for the deck to reconnect after the upload")
	uploadCmd.MarkFlagsMutuallyExclusive("full", "changed")
	addIconsFlag(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	console := newConsoleNotifier()
	e, err := newEngine(engineOptions{Notifier: console})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Deckhand - Serial Upload\n")
	fmt.Printf("Connection: %s\n\n", e.connInfo)

	ctx := cmd.Context()
	if err := e.connect(ctx, 5*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	choice := deck.UploadCancel
	switch {
	case uploadFull:
		choice = deck.UploadFull
	case uploadChanged:
		choice = deck.UploadChangedOnly
	}

	result, err := e.uploader.Upload(ctx, deck.UploadOptions{Choice: choice})
	switch {
	case errors.Is(err, deck.ErrUploadCancelled):
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	case result.UpToDate:
		return nil
	}

	fmt.Printf("\n--- Upload summary ---\n")
	fmt.Printf("Uploaded: %d\n", result.Uploaded)
	fmt.Printf("Skipped: %d\n", result.Skipped)

	if uploadWait > 0 {
		return waitReconnect(ctx, e, time.Duration(uploadWait)*time.Second)
	}
	return nil
}

// waitReconnect waits for the rescan that follows an upload to find the
// rebooted deck.
func waitReconnect(ctx context.Context, e *engine, timeout time.Duration) error {
	fmt.Printf("Waiting for the deck to come back...\n")
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := e.session.WaitState(ctx, deck.StateConnected); err != nil {
		fmt.Printf("Deck did not reconnect within %v\n", timeout)
		os.Exit(1)
	}
	fmt.Printf("Reconnected to %s on %s\n", e.session.Device(), e.session.PortName())
	return nil
}
