// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deckproto

// Kind identifies a decoded device message.
type Kind int

const (
	KindUnknown Kind = iota
	KindPong
	KindButtonPress
	KindTimerDone
	KindTimerUpdate
	KindCounterUpdate
	KindSyncPage
	KindSyncState
	KindReply
)

var kindNames = map[Kind]string{
	KindUnknown:       "UNKNOWN",
	KindPong:          PrefixPong,
	KindButtonPress:   PrefixButton,
	KindTimerDone:     PrefixTimerDone,
	KindTimerUpdate:   PrefixTimerUpdate,
	KindCounterUpdate: PrefixCounterUpdate,
	KindSyncPage:      PrefixSyncPage,
	KindSyncState:     PrefixSyncState,
	KindReply:         "REPLY",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Message is one decoded line from the device. The concrete type is one of
// the structs below; switch on it to handle a message.
type Message interface {
	Kind() Kind
	isMessage()
}

// Pong is the handshake reply carrying the device's self-reported name.
type Pong struct {
	Name string
}

// ButtonPress is a physical button press. Bit is set when the device also
// reports the toggle state it switched to.
type ButtonPress struct {
	Page   int
	Button int
	Bit    *int
}

// TimerDone signals that a countdown button reached zero.
type TimerDone struct {
	Page   int
	Button int
}

// TimerUpdate reports a timer state change and the seconds left.
type TimerUpdate struct {
	Page      int
	Button    int
	State     TimerState
	Remaining int
}

// CounterUpdate reports the device-held value of a counter button.
type CounterUpdate struct {
	Page   int
	Button int
	Value  int
}

// SyncPage reports the page the device is currently showing.
type SyncPage struct {
	Page int
}

// SyncState reports a toggle bit for a button on the synced page.
type SyncState struct {
	Button int
	Bit    int
}

// Reply is a bare keyword sent during an upload (READY, OK_FILE, ...).
type Reply struct {
	Keyword string
}

// Unknown carries a line no parser recognized.
type Unknown struct {
	Line string
}

func (Pong) Kind() Kind          { return KindPong }
func (ButtonPress) Kind() Kind   { return KindButtonPress }
func (TimerDone) Kind() Kind     { return KindTimerDone }
func (TimerUpdate) Kind() Kind   { return KindTimerUpdate }
func (CounterUpdate) Kind() Kind { return KindCounterUpdate }
func (SyncPage) Kind() Kind      { return KindSyncPage }
func (SyncState) Kind() Kind     { return KindSyncState }
func (Reply) Kind() Kind         { return KindReply }
func (Unknown) Kind() Kind       { return KindUnknown }

func (Pong) isMessage()          {}
func (ButtonPress) isMessage()   {}
func (TimerDone) isMessage()     {}
func (TimerUpdate) isMessage()   {}
func (CounterUpdate) isMessage() {}
func (SyncPage) isMessage()      {}
func (SyncState) isMessage()     {}
func (Reply) isMessage()         {}
func (Unknown) isMessage()       {}

// HasBit reports whether the press carried a toggle bit.
func (b ButtonPress) HasBit() bool {
	return b.Bit != nil
}
