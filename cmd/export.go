// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the upload set to a directory",
	Long: `Export esp_config.json and every button image to a directory, for
copying to the deck's SD card by hand. The files are identical to what an
upload would send.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "deck_export", "Output directory")
	addIconsFlag(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	_, exporter, err := newExporter()
	if err != nil {
		return err
	}

	files, err := exporter.Export(cmd.Context())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return err
	}

	for _, f := range files {
		path := filepath.Join(exportDir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("%-24s %8d bytes  %s\n", f.Name, len(f.Data), deck.HashFile(f.Data)[:12])
	}
	fmt.Printf("\n%d file(s) written to %s\n", len(files), exportDir)
	return nil
}
