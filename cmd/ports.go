// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the serial ports discovery would probe",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	registry := deck.NewSerialRegistry(SerialDriver{})
	if portName != "" {
		if _, err := registry.Request(cmd.Context(), portName); err != nil {
			return err
		}
	}

	ports, err := registry.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Printf("No USB serial ports found\n")
		return nil
	}

	for _, p := range ports {
		info := p.Info()
		fmt.Printf("%s\n", p.Name())
		printPortDetails(info)
	}
	return nil
}
