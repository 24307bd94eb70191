// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

var brightnessCmd = &cobra.Command{
	Use:   "brightness <percent>",
	Short: "Set the deck's screen brightness",
	Long: `Save the brightness (0-100) and push it to the deck. The value is saved
even when no deck is connected and is sent again with the next upload.`,
	Args: cobra.ExactArgs(1),
	RunE: runBrightness,
}

var sleepCmd = &cobra.Command{
	Use:   "sleep <minutes|off>",
	Short: "Set the deck's screen sleep timeout",
	Args:  cobra.ExactArgs(1),
	RunE:  runSleep,
}

func init() {
	rootCmd.AddCommand(brightnessCmd)
	rootCmd.AddCommand(sleepCmd)
}

func runBrightness(cmd *cobra.Command, args []string) error {
	percent, err := parseBrightness(args[0])
	if err != nil {
		return err
	}
	return applySetting(cmd, func(s *deck.Session) error {
		return s.SetBrightness(percent)
	}, fmt.Sprintf("Brightness set to %d%%", percent))
}

func runSleep(cmd *cobra.Command, args []string) error {
	enabled, minutes, err := parseSleep(args[0])
	if err != nil {
		return err
	}
	done := "Sleep disabled"
	if enabled {
		done = fmt.Sprintf("Sleep after %d minute(s)", minutes)
	}
	return applySetting(cmd, func(s *deck.Session) error {
		return s.SetSleep(enabled, minutes)
	}, done)
}

func applySetting(cmd *cobra.Command, apply func(s *deck.Session) error, done string) error {
	e, err := newEngine(engineOptions{Notifier: newConsoleNotifier()})
	if err != nil {
		return err
	}
	if err := e.connect(cmd.Context(), 3*time.Second); err != nil {
		logger.Warnw("deck not connected, saving only", "error", err)
	}
	defer e.session.Disconnect()

	err = apply(e.session)
	if errors.Is(err, deck.ErrNotConnected) {
		fmt.Printf("%s (saved; deck not connected)\n", done)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", done)
	return nil
}

func parseBrightness(arg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(arg), "%"))
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("brightness must be 0-100, got %q", arg)
	}
	return v, nil
}

// parseSleep accepts "off", "0" or a positive number of minutes.
func parseSleep(arg string) (bool, int, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "off" || arg == "never" || arg == "0" {
		return false, 0, nil
	}
	v, err := strconv.Atoi(strings.TrimSuffix(arg, "m"))
	if err != nil || v < 0 {
		return false, 0, fmt.Errorf("sleep must be minutes or off, got %q", arg)
	}
	return true, v, nil
}
