// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package deckproto implements the line protocol spoken by the macro deck.
//
// Every message is a single line of ASCII text terminated by '\n'. Fields are
// separated by ':'. The only binary data on the wire is the file payload that
// follows a FILE header during an upload, and its length is declared by that
// header.
package deckproto

import "time"

// Link parameters
const (
	BaudRate = 115200

	// MaxLineLength bounds a single inbound line. Longer lines are dropped.
	MaxLineLength = 4096
)

// Handshake
const (
	HandshakeTimeout = 300 * time.Millisecond
	SyncDelay        = 200 * time.Millisecond
)

// Host -> device commands
const (
	CmdPing          = "PING_DECK"
	CmdGetSync       = "GET_SYNC"
	CmdStartUpload   = "START_UPLOAD"
	CmdFile          = "FILE"
	CmdEndUpload     = "END_UPLOAD"
	CmdSetBrightness = "SET_BRIGHTNESS"
	CmdSetSleep      = "SET_SLEEP"
	CmdCounter       = "COUNTER"
)

// Device -> host message prefixes
const (
	PrefixPong          = "PONG_DECK"
	PrefixButton        = "BTN"
	PrefixTimerDone     = "TIMER_DONE"
	PrefixTimerUpdate   = "TIMER_UPDATE"
	PrefixCounterUpdate = "COUNTER_UPDATE"
	PrefixSyncPage      = "SYNC_PAGE"
	PrefixSyncState     = "SYNC_STATE"
)

// Upload replies
const (
	ReplyReady      = "READY"
	ReplyOKFile     = "OK_FILE"
	ReplyOKData     = "OK_DATA"
	ReplyDoneReboot = "DONE_REBOOT"
	ReplySetupDone  = "SETUP_DONE"
)

// TimerState is the state field of TIMER_UPDATE.
type TimerState int

const (
	TimerPaused  TimerState = 0
	TimerRunning TimerState = 1
	TimerReset   TimerState = 2
)

func (s TimerState) String() string {
	switch s {
	case TimerPaused:
		return "paused"
	case TimerRunning:
		return "running"
	case TimerReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Counter actions understood by the firmware
const (
	CounterIncrement = "increment"
	CounterDecrement = "decrement"
	CounterReset     = "reset"
)
