// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"sync"
	"time"
)

// LiveState holds device-driven values that are not part of the saved
// configuration: running timer targets, counter values and frozen labels.
type LiveState struct {
	mu    sync.Mutex
	cells map[Key]*liveCell
	now   func() time.Time
}

type liveCell struct {
	timerTarget *time.Time
	counter     *int
	label       string
}

// NewLiveState creates an empty state. A nil clock selects time.Now.
func NewLiveState(now func() time.Time) *LiveState {
	if now == nil {
		now = time.Now
	}
	return &LiveState{cells: make(map[Key]*liveCell), now: now}
}

func (l *LiveState) cell(k Key) *liveCell {
	c, ok := l.cells[k]
	if !ok {
		c = &liveCell{}
		l.cells[k] = c
	}
	return c
}

// StartTimer sets the timer target to now+remaining unless a target is
// already set. It returns the effective target and whether it was set by
// this call. Repeated running updates therefore never move the deadline.
func (l *LiveState) StartTimer(k Key, remaining int) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.cell(k)
	c.label = ""
	if c.timerTarget != nil {
		return *c.timerTarget, false
	}
	target := l.now().Add(time.Duration(remaining) * time.Second)
	c.timerTarget = &target
	return target, true
}

// ClearTimer drops the timer target.
func (l *LiveState) ClearTimer(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.cells[k]; ok {
		c.timerTarget = nil
	}
}

// TimerTarget returns the running timer's deadline.
func (l *LiveState) TimerTarget(k Key) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.cells[k]; ok && c.timerTarget != nil {
		return *c.timerTarget, true
	}
	return time.Time{}, false
}

// Remaining returns the whole seconds left on a running timer, rounded up.
func (l *LiveState) Remaining(k Key) (int, bool) {
	target, ok := l.TimerTarget(k)
	if !ok {
		return 0, false
	}
	left := target.Sub(l.now())
	if left <= 0 {
		return 0, true
	}
	return int((left + time.Second - 1) / time.Second), true
}

// SetCounter stores the device-held counter value.
func (l *LiveState) SetCounter(k Key, v int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.cell(k)
	c.counter = &v
}

// Counter returns the last reported counter value.
func (l *LiveState) Counter(k Key) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.cells[k]; ok && c.counter != nil {
		return *c.counter, true
	}
	return 0, false
}

// SetLabel stores a label that overrides the configured one, such as a
// paused timer's remaining time.
func (l *LiveState) SetLabel(k Key, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cell(k).label = text
}

// Label returns the override label.
func (l *LiveState) Label(k Key) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.cells[k]; ok && c.label != "" {
		return c.label, true
	}
	return "", false
}

// Timers returns every running timer target.
func (l *LiveState) Timers() map[Key]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[Key]time.Time)
	for k, c := range l.cells {
		if c.timerTarget != nil {
			out[k] = *c.timerTarget
		}
	}
	return out
}

// Counters returns every known counter value.
func (l *LiveState) Counters() map[Key]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[Key]int)
	for k, c := range l.cells {
		if c.counter != nil {
			out[k] = *c.counter
		}
	}
	return out
}

// Labels returns every override label.
func (l *LiveState) Labels() map[Key]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[Key]string)
	for k, c := range l.cells {
		if c.label != "" {
			out[k] = c.label
		}
	}
	return out
}
