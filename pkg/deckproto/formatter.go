// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deckproto

import (
	"fmt"
	"time"
)

// FormatMessage formats a decoded message into a human-readable string
func FormatMessage(msg Message) string {
	switch m := msg.(type) {
	case Pong:
		return fmt.Sprintf("%s name=%q", m.Kind(), m.Name)
	case ButtonPress:
		if m.Bit != nil {
			return fmt.Sprintf("%s page=%d button=%d bit=%d", m.Kind(), m.Page, m.Button, *m.Bit)
		}
		return fmt.Sprintf("%s page=%d button=%d", m.Kind(), m.Page, m.Button)
	case TimerDone:
		return fmt.Sprintf("%s page=%d button=%d", m.Kind(), m.Page, m.Button)
	case TimerUpdate:
		return fmt.Sprintf("%s page=%d button=%d state=%s remaining=%s",
			m.Kind(), m.Page, m.Button, m.State, FormatClock(m.Remaining))
	case CounterUpdate:
		return fmt.Sprintf("%s page=%d button=%d value=%d", m.Kind(), m.Page, m.Button, m.Value)
	case SyncPage:
		return fmt.Sprintf("%s page=%d", m.Kind(), m.Page)
	case SyncState:
		return fmt.Sprintf("%s button=%d bit=%d", m.Kind(), m.Button, m.Bit)
	case Reply:
		return m.Keyword
	case Unknown:
		return fmt.Sprintf("%s %q", m.Kind(), m.Line)
	default:
		return fmt.Sprintf("%T", msg)
	}
}

// FormatLogLine formats a message with a receive timestamp, one per line
func FormatLogLine(at time.Time, msg Message) string {
	return fmt.Sprintf("[%s] %s\n", at.Format("15:04:05.000"), FormatMessage(msg))
}

// FormatClock renders seconds as MM:SS, the way the deck shows timers.
// Negative values render as 00:00.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
