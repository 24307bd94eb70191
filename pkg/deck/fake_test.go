// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/deckhand/pkg/store"
)

// fakeDevice is an in-memory deck. Host lines go to onLine, FILE payloads
// to onData; both return the lines the device answers with.
type fakeDevice struct {
	mu      sync.Mutex
	handle  *fakeHandle
	opens   int
	out     [][]byte
	buf     []byte
	expect  int
	inFile  bool
	file    string
	lines   []string
	files   map[string][]byte
	readErr error

	onLine func(line string) []string
	onData func(name string, data []byte) []string
}

func newFakeDevice(onLine func(line string) []string) *fakeDevice {
	return &fakeDevice{onLine: onLine, files: make(map[string][]byte)}
}

// deckScript answers the handshake and the sync request like a real deck.
func deckScript(name string, sync ...string) func(string) []string {
	return func(line string) []string {
		switch line {
		case "PING_DECK":
			return []string{"PONG_DECK:" + name}
		case "GET_SYNC":
			return sync
		}
		return nil
	}
}

// uploadScript answers the upload exchange. fileReply overrides OK_FILE
// for a named file.
func uploadScript(name string, fileReply map[string]string) (func(string) []string, func(string, []byte) []string) {
	onLine := func(line string) []string {
		switch {
		case line == "PING_DECK":
			return []string{"PONG_DECK:" + name}
		case line == "START_UPLOAD":
			return []string{"LOG:preparing", "READY"}
		case strings.HasPrefix(line, "FILE:"):
			fields := strings.Split(line, ":")
			if r, ok := fileReply[fields[1]]; ok {
				return []string{r}
			}
			return []string{"OK_FILE"}
		case line == "END_UPLOAD":
			return []string{"DONE_REBOOT", "SETUP_DONE"}
		}
		return nil
	}
	onData := func(string, []byte) []string {
		return []string{"OK_DATA"}
	}
	return onLine, onData
}

func (d *fakeDevice) open() *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	d.buf, d.expect, d.inFile = nil, 0, false
	d.handle = &fakeHandle{dev: d}
	return d.handle
}

// send queues lines for the host.
func (d *fakeDevice) send(lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range lines {
		d.out = append(d.out, []byte(l+"\n"))
	}
}

// fail makes the next read of the open handle return err.
func (d *fakeDevice) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

func (d *fakeDevice) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

func (d *fakeDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeDevice) isOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle != nil && !d.handle.closed
}

// consumeLocked parses host output: text lines, or exactly the declared
// number of raw bytes after a FILE header.
func (d *fakeDevice) consumeLocked(b []byte) {
	d.buf = append(d.buf, b...)
	for {
		if d.inFile {
			if len(d.buf) < d.expect {
				return
			}
			data := append([]byte(nil), d.buf[:d.expect]...)
			d.buf = d.buf[d.expect:]
			d.inFile = false
			d.files[d.file] = data
			if d.onData != nil {
				d.queueLocked(d.onData(d.file, data))
			}
			continue
		}

		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		d.lines = append(d.lines, line)

		if d.onLine != nil {
			d.queueLocked(d.onLine(line))
		}
		if strings.HasPrefix(line, "FILE:") {
			fields := strings.Split(line, ":")
			n, _ := strconv.Atoi(fields[len(fields)-1])
			d.file, d.expect, d.inFile = fields[1], n, true
		}
	}
}

func (d *fakeDevice) queueLocked(lines []string) {
	for _, l := range lines {
		d.out = append(d.out, []byte(l+"\n"))
	}
}

// fakeHandle is one open of the device. A closed handle never touches the
// device queue, so a stale reader cannot steal lines from the next open.
type fakeHandle struct {
	dev    *fakeDevice
	closed bool
}

func (h *fakeHandle) Read(b []byte) (int, error) {
	deadline := time.Now().Add(5 * time.Millisecond)
	for {
		d := h.dev
		d.mu.Lock()
		if h.closed || d.handle != h {
			d.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if err := d.readErr; err != nil {
			d.readErr = nil
			d.mu.Unlock()
			return 0, err
		}
		if len(d.out) > 0 {
			chunk := d.out[0]
			n := copy(b, chunk)
			if n < len(chunk) {
				d.out[0] = chunk[n:]
			} else {
				d.out = d.out[1:]
			}
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()

		if time.Now().After(deadline) {
			return 0, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *fakeHandle) Write(b []byte) (int, error) {
	d := h.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if h.closed {
		return 0, io.ErrClosedPipe
	}
	d.consumeLocked(b)
	return len(b), nil
}

func (h *fakeHandle) Close() error {
	d := h.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if h.closed {
		return io.ErrClosedPipe
	}
	h.closed = true
	return nil
}

// fakeDriver opens fake devices by name. gate, when set, blocks Open
// until it is closed.
type fakeDriver struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	gate    chan struct{}
	opening chan string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{devices: make(map[string]*fakeDevice)}
}

func (f *fakeDriver) add(name string, d *fakeDevice) *Port {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[name] = d
	return NewPort(PortInfo{Name: name, IsUSB: true}, f)
}

func (f *fakeDriver) Open(name string, baud int) (io.ReadWriteCloser, error) {
	f.mu.Lock()
	d, ok := f.devices[name]
	gate, opening := f.gate, f.opening
	f.mu.Unlock()

	if opening != nil {
		select {
		case opening <- name:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, fmt.Errorf("no such port %s", name)
	}
	return d.open(), nil
}

// recordingNotifier keeps everything the engine reports.
type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
	events   []Event
	alerts   []string
	notes    []string
	progress []Progress
	choice   UploadChoice
	confirms int
	plans    []Plan
}

func (n *recordingNotifier) Status(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, text)
}

func (n *recordingNotifier) Progress(p Progress) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, p)
}

func (n *recordingNotifier) Event(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Alert(title, detail string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, detail)
}

func (n *recordingNotifier) Notify(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, title+": "+body)
}

func (n *recordingNotifier) Confirm(ctx context.Context, plan Plan) (UploadChoice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirms++
	n.plans = append(n.plans, plan)
	return n.choice, nil
}

func (n *recordingNotifier) lastStatus() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.statuses) == 0 {
		return ""
	}
	return n.statuses[len(n.statuses)-1]
}

func (n *recordingNotifier) hasStatus(s string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, got := range n.statuses {
		if got == s {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) alertList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.alerts...)
}

func (n *recordingNotifier) eventList() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

// memSaver counts configuration saves.
type memSaver struct {
	mu    sync.Mutex
	saves int
	last  *store.Config
	err   error
}

func (m *memSaver) SaveConfig(cfg *store.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.last = cfg.Clone()
	return m.err
}

func (m *memSaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// recordingExecutor keeps every action request.
type recordingExecutor struct {
	mu   sync.Mutex
	reqs []ActionRequest
}

func (e *recordingExecutor) Execute(ctx context.Context, req ActionRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return nil
}

func (e *recordingExecutor) requests() []ActionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ActionRequest(nil), e.reqs...)
}

// captureSender records outbound lines or fails.
type captureSender struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (c *captureSender) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.lines = append(c.lines, line)
	return nil
}

func fastTimings() Timings {
	return Timings{
		HandshakeTimeout: 100 * time.Millisecond,
		SyncDelay:        20 * time.Millisecond,
		PassiveInterval:  50 * time.Millisecond,
		SearchRounds:     3,
		SearchDelay:      10 * time.Millisecond,
		SettleDelay:      20 * time.Millisecond,
		ReplyTimeout:     500 * time.Millisecond,
		SetupSoftTimeout: 50 * time.Millisecond,
		SetupHardTimeout: 200 * time.Millisecond,
		ListenerExit:     200 * time.Millisecond,
		HotplugSettle:    10 * time.Millisecond,
	}
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// togglePageConfig has two pages with a toggle at page 1 index 2 and
// page 0 index 3.
func togglePageConfig() *store.Config {
	cfg := &store.Config{
		PageCount: 2,
		Pages: [][]*store.Button{
			{
				{Type: store.TypeKey, Label: "Copy", Combo: "CTRL+C"},
				{Type: store.TypeCounter, Label: "Count", CounterStartValue: 3, CounterAction: "increment"},
				{Type: store.TypeGoto, Label: "Next", GotoPage: 1},
				{Type: store.TypeToggle, Label: "Mic", ToggleState: true, ToggleData: &store.ToggleData{OffCombo: "F13", OnCombo: "F14"}},
				{Type: store.TypeTimer, Label: "Tea", TimerDuration: 180},
			},
			{
				{Type: store.TypeKey, Label: "Paste", Combo: "CTRL+V"},
				nil,
				{Type: store.TypeToggle, Label: "Lights"},
			},
		},
	}
	cfg.EnsureDefaults()
	return cfg
}

var errUnplugged = errors.New("device unplugged")
