// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

var httpHost string

var httpUploadCmd = &cobra.Command{
	Use:   "http_upload",
	Short: "Upload every file to a deck over WiFi",
	Long: `Export the configuration and POST every file to the deck's /upload
endpoint, then ask it to reboot. No manifest is consulted; all files are
sent.

The host defaults to the last one used, or ` + deck.DefaultDeviceHost + `.
A host given with --host is remembered for next time.`,
	RunE: runHTTPUpload,
}

func init() {
	rootCmd.AddCommand(httpUploadCmd)
	httpUploadCmd.Flags().StringVar(&httpHost, "host", "", "Deck address, e.g. 192.168.1.50 or http://smartdeck.local")
	addIconsFlag(httpUploadCmd)
}

func runHTTPUpload(cmd *cobra.Command, args []string) error {
	st, exporter, err := newExporter()
	if err != nil {
		return err
	}

	host := httpHost
	if host == "" {
		host = st.DeviceHost()
	}
	host = deck.NormalizeHost(host)
	if httpHost != "" {
		if err := st.SetDeviceHost(host); err != nil {
			logger.Warnw("save device host failed", "error", err)
		}
	}

	fmt.Printf("Deckhand - WiFi Upload\n")
	fmt.Printf("Host: %s\n\n", host)

	files, err := exporter.Export(cmd.Context())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	uploader := deck.NewHTTPUploader(newConsoleNotifier(), logger.Named("http"))
	if err := uploader.Upload(cmd.Context(), host, files); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return nil
}
