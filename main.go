// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Deckhand - Serial Macro Deck Companion
//
// A CLI tool that finds a serial macro deck, mirrors its pages and buttons,
// performs button actions on the host and uploads its configuration.

package main

import (
	"os"

	"github.com/Thermoquad/deckhand/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
