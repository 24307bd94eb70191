// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"time"
)

// Status texts shown by front ends
const (
	StatusDisconnected = "Disconnected"
	StatusNotFound     = "Device not found - search again to retry"
	StatusUpToDate     = "Up to date. No upload needed."
	StatusCancelled    = "Upload cancelled."
)

// UploadChoice is the user's answer to the upload confirmation.
type UploadChoice int

const (
	UploadCancel UploadChoice = iota
	UploadChangedOnly
	UploadFull
)

func (c UploadChoice) String() string {
	switch c {
	case UploadChangedOnly:
		return "changed"
	case UploadFull:
		return "full"
	default:
		return "cancel"
	}
}

// Progress reports upload advancement.
type Progress struct {
	File  string
	Index int // 1-based
	Total int
	Bytes int
}

// Notifier is the UI side of the engine. Implementations must not block
// for long; the engine calls them from its own goroutines.
type Notifier interface {
	// Status replaces the connection/operation status line.
	Status(text string)

	// Progress reports a file transfer step.
	Progress(p Progress)

	// Event reports a live-state change to repaint.
	Event(ev Event)

	// Alert shows a blocking error for a user-confirmed action.
	Alert(title, detail string)

	// Notify raises a desktop notification.
	Notify(title, body string)

	// Confirm asks how to proceed with an upload plan.
	Confirm(ctx context.Context, plan Plan) (UploadChoice, error)
}

// NopNotifier ignores everything and declines uploads. Embed it to
// implement only part of Notifier.
type NopNotifier struct{}

func (NopNotifier) Status(string)         {}
func (NopNotifier) Progress(Progress)     {}
func (NopNotifier) Event(Event)           {}
func (NopNotifier) Alert(string, string)  {}
func (NopNotifier) Notify(string, string) {}
func (NopNotifier) Confirm(context.Context, Plan) (UploadChoice, error) {
	return UploadCancel, nil
}

// Event is a live-state change.
type Event interface {
	isEvent()
}

// Key addresses a button.
type Key struct {
	Page   int
	Button int
}

// SessionChanged is emitted on every session state transition.
type SessionChanged struct {
	State  State
	Port   string
	Device string
}

// PageChanged is emitted when the displayed page switches.
type PageChanged struct {
	Page int
}

// ButtonChanged asks for a repaint of a single cell from configuration.
type ButtonChanged struct {
	Key
}

// LabelChanged overrides the visible label of a cell.
type LabelChanged struct {
	Key
	Text string
}

// TimerStarted is emitted when a running timer gets its target.
type TimerStarted struct {
	Key
	Target time.Time
}

func (SessionChanged) isEvent() {}
func (PageChanged) isEvent()    {}
func (ButtonChanged) isEvent()  {}
func (LabelChanged) isEvent()   {}
func (TimerStarted) isEvent()   {}
