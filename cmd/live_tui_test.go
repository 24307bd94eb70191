// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Thermoquad/deckhand/pkg/deck"
	"github.com/Thermoquad/deckhand/pkg/deckproto"
	"github.com/Thermoquad/deckhand/pkg/store"
)

func newTestLiveModel(t *testing.T, cfg *store.Config) liveModel {
	t.Helper()
	e, _ := newTestEngine(t, cfg)
	m := newLiveModel(context.Background(), e)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	return m
}

func update(t *testing.T, m liveModel, msg tea.Msg) (liveModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	switch v := next.(type) {
	case liveModel:
		return v, cmd
	case *liveModel:
		return *v, cmd
	}
	t.Fatalf("Update returned %T", next)
	return m, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCellLabel(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := &store.Config{
		Pages: [][]*store.Button{{
			{Type: store.TypeTimer, Label: "Tea", TimerDuration: 300},
			{Type: store.TypeCounter, Label: "Cups"},
			{Type: store.TypeKey, Combo: "CTRL+C", Label: "Copy"},
			{Type: store.TypeKey},
		}},
	}
	cfg.EnsureDefaults()

	snap := deck.Snapshot{
		Config:   cfg,
		Timers:   map[deck.Key]time.Time{{Page: 0, Button: 0}: now.Add(90*time.Second + 300*time.Millisecond)},
		Counters: map[deck.Key]int{{Page: 0, Button: 1}: 4},
		Labels:   map[deck.Key]string{},
	}

	tests := []struct {
		idx  int
		want string
	}{
		{0, "01:31"},
		{1, "4"},
		{2, "Copy"},
		{3, ""},
		{9, ""},
	}
	for _, tt := range tests {
		if got := cellLabel(snap, 0, tt.idx, now); got != tt.want {
			t.Errorf("cellLabel(%d) = %q, want %q", tt.idx, got, tt.want)
		}
	}

	snap.Labels[deck.Key{Page: 0, Button: 1}] = "DONE"
	if got := cellLabel(snap, 0, 1, now); got != "DONE" {
		t.Errorf("label override = %q", got)
	}

	// An expired target shows zero until the deck reports done
	if got := cellLabel(snap, 0, 0, now.Add(time.Hour)); got != "00:00" {
		t.Errorf("expired timer = %q", got)
	}
}

func TestLiveCursor(t *testing.T) {
	cfg := &store.Config{Grid: store.Grid{Cols: 3, Rows: 2}}
	m := newTestLiveModel(t, cfg)

	steps := []struct {
		key  string
		want int
	}{
		{"right", 1},
		{"right", 2},
		{"right", 2},
		{"down", 5},
		{"down", 5},
		{"h", 4},
		{"up", 1},
	}
	for _, s := range steps {
		m, _ = update(t, m, key(s.key))
		if m.cursor != s.want {
			t.Fatalf("after %q cursor = %d, want %d", s.key, m.cursor, s.want)
		}
	}
}

func TestLiveConfirmDialog(t *testing.T) {
	m := newTestLiveModel(t, twoPageConfig())

	tests := []struct {
		key  string
		want deck.UploadChoice
	}{
		{"c", deck.UploadChangedOnly},
		{"enter", deck.UploadChangedOnly},
		{"f", deck.UploadFull},
		{"n", deck.UploadCancel},
		{"esc", deck.UploadCancel},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			reply := make(chan deck.UploadChoice, 1)
			m, _ := update(t, m, confirmMsg{reply: reply})
			if m.confirm == nil {
				t.Fatal("dialog not shown")
			}
			if !strings.Contains(m.View(), "c=changed only") {
				t.Error("dialog not rendered")
			}

			// Unrelated keys leave the dialog open
			m, _ = update(t, m, key("x"))
			if m.confirm == nil {
				t.Fatal("dialog closed by unrelated key")
			}

			m, cmd := update(t, m, key(tt.key))
			if cmd != nil {
				t.Error("answering the dialog should not start anything")
			}
			if m.confirm != nil {
				t.Error("dialog still open")
			}
			select {
			case got := <-reply:
				if got != tt.want {
					t.Errorf("choice = %v, want %v", got, tt.want)
				}
			default:
				t.Error("no reply sent")
			}
		})
	}
}

func TestLiveLineStatistics(t *testing.T) {
	m := newTestLiveModel(t, twoPageConfig())

	m, _ = update(t, m, lineMsg{line: "PONG_DECK:SmartDeck", msg: deckproto.Pong{Name: "SmartDeck"}})
	m, _ = update(t, m, lineMsg{line: "HELLO", msg: deckproto.Unknown{Line: "HELLO"}, err: deckproto.ErrUnknownMessage})
	m, _ = update(t, m, lineMsg{err: deckproto.ErrLineTooLong})
	m, _ = update(t, m, lineMsg{line: "BTN:x:1", err: errors.New("bad page")})

	if m.stats.TotalLines != 3 || m.stats.ValidLines != 1 || m.stats.UnknownLines != 1 || m.stats.ParseErrors != 1 {
		t.Errorf("stats = %+v", m.stats)
	}
	if m.stats.Overflows != 1 {
		t.Errorf("overflows = %d", m.stats.Overflows)
	}

	// Unknown lines are counted but not logged
	if len(m.errorLog) != 2 {
		t.Errorf("log = %+v", m.errorLog)
	}
}

func TestLiveSessionEvents(t *testing.T) {
	m := newTestLiveModel(t, twoPageConfig())

	m, _ = update(t, m, eventMsg{deck.SessionChanged{State: deck.StateConnected, Port: "/dev/ttyACM0", Device: "SmartDeck"}})
	if m.state != deck.StateConnected || m.device != "SmartDeck" || m.port != "/dev/ttyACM0" {
		t.Errorf("session = %v %q %q", m.state, m.device, m.port)
	}
	if !strings.Contains(m.View(), "SmartDeck on /dev/ttyACM0") {
		t.Error("connection not shown")
	}

	m, _ = update(t, m, progressMsg{File: "esp_config.json", Index: 1, Total: 3})
	if m.progress == nil {
		t.Fatal("progress not recorded")
	}
	m, _ = update(t, m, statusMsg("Success! (3 uploaded, 0 skipped)"))
	if m.progress != nil {
		t.Error("progress kept after the final status")
	}

	m, _ = update(t, m, eventMsg{deck.SessionChanged{State: deck.StateDisconnected}})
	if m.state != deck.StateDisconnected {
		t.Errorf("state = %v", m.state)
	}
}

func TestLiveStatusClears(t *testing.T) {
	m := newTestLiveModel(t, twoPageConfig())

	m, cmd := update(t, m, statusMsg("Error: no reply from device"))
	if cmd == nil {
		t.Fatal("error status scheduled no clear")
	}
	stale := statusClearMsg{seq: m.statusSeq}

	m, cmd = update(t, m, statusMsg("Searching for device..."))
	if cmd != nil {
		t.Error("ongoing status scheduled a clear")
	}
	m, _ = update(t, m, stale)
	if m.status != "Searching for device..." {
		t.Errorf("stale clear replaced status: %q", m.status)
	}

	m, _ = update(t, m, statusMsg(deck.StatusUpToDate))
	m, _ = update(t, m, statusClearMsg{seq: m.statusSeq})
	if m.status != "" {
		t.Errorf("status = %q, want cleared", m.status)
	}
}

func TestStatusClearDelay(t *testing.T) {
	tests := []struct {
		status string
		want   time.Duration
	}{
		{"Error: upload failed", 8 * time.Second},
		{"Success! (2 uploaded, 1 skipped)", 5 * time.Second},
		{deck.StatusUpToDate, 5 * time.Second},
		{deck.StatusCancelled, 5 * time.Second},
		{deck.StatusNotFound, 3 * time.Second},
		{"Uploading icon_0_1.jpg", 0},
		{deck.StatusDisconnected, 0},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := statusClearDelay(tt.status); got != tt.want {
				t.Errorf("statusClearDelay(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestLiveBusyOperations(t *testing.T) {
	m := newTestLiveModel(t, twoPageConfig())

	m, cmd := update(t, m, key("u"))
	if cmd == nil || m.busy != "upload" {
		t.Fatalf("upload not started, busy = %q", m.busy)
	}

	// A second long operation is refused while the first runs
	m, cmd = update(t, m, key("s"))
	if cmd != nil {
		t.Error("search started during upload")
	}

	m, _ = update(t, m, opDoneMsg{op: "upload", err: deck.ErrUploadCancelled})
	if m.busy != "" {
		t.Errorf("busy = %q after completion", m.busy)
	}
	for _, entry := range m.errorLog {
		if strings.Contains(entry.message, "upload failed") {
			t.Errorf("cancellation logged as failure: %q", entry.message)
		}
	}
}

func TestLivePress(t *testing.T) {
	m := newTestLiveModel(t, twoPageConfig())

	m, cmd := update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("press produced no command")
	}
	done, ok := cmd().(opDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("press result = %+v", done)
	}
	m, _ = update(t, m, done)
	if m.snap.Page != 1 {
		t.Errorf("page = %d, want 1 after pressing goto", m.snap.Page)
	}
}
