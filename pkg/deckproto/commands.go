// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deckproto

import (
	"fmt"
	"strings"
)

// Ping creates the handshake probe
func Ping() string {
	return CmdPing + "\n"
}

// GetSync asks the device to report its current page and toggle states
func GetSync() string {
	return CmdGetSync + "\n"
}

// StartUpload opens an upload session
func StartUpload() string {
	return CmdStartUpload + "\n"
}

// FileHeader announces a file of exactly size bytes.
//
// The raw payload must follow once the device acknowledges with OK_FILE.
// Colons and newlines in the name would break framing and are replaced.
func FileHeader(name string, size int) string {
	return fmt.Sprintf("%s:%s:%d\n", CmdFile, sanitizeField(name), size)
}

// EndUpload closes the upload session; the device answers DONE_REBOOT
func EndUpload() string {
	return CmdEndUpload + "\n"
}

// SetBrightness sets the backlight level, clamped to 0-100
func SetBrightness(percent int) string {
	percent = max(0, min(percent, 100))
	return fmt.Sprintf("%s:%d\n", CmdSetBrightness, percent)
}

// SetSleep sets the idle sleep timeout in minutes. Zero disables sleep.
func SetSleep(minutes int) string {
	return fmt.Sprintf("%s:%d\n", CmdSetSleep, max(0, minutes))
}

// Counter tells the device to apply a counter action to a button.
// Action defaults to increment.
func Counter(page, button, start int, action string) string {
	if action == "" {
		action = CounterIncrement
	}
	return fmt.Sprintf("%s:%d:%d:%d:%s\n", CmdCounter, page, button, start, sanitizeField(action))
}

func sanitizeField(s string) string {
	return strings.NewReplacer(":", "_", "\n", "_", "\r", "_").Replace(s)
}
