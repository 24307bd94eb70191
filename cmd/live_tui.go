// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/deckhand/pkg/deck"
	"github.com/Thermoquad/deckhand/pkg/deckproto"
	"github.com/Thermoquad/deckhand/pkg/store"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	cellWidth        = 14
	brightnessStep   = 10
	maxLiveLogLength = 100
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Event log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// liveModel is the Bubble Tea model for the live TUI
type liveModel struct {
	ctx      context.Context
	e        *engine
	connInfo string

	// Session
	state     deck.State
	port      string
	device    string
	status    string
	statusSeq int

	// Deck mirror
	snap   deck.Snapshot
	cursor int

	// Operations started from the keyboard
	busy     string
	progress *deck.Progress
	bar      progress.Model
	confirm  *confirmMsg

	// Monitoring
	stats         *deckproto.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int

	// UI state
	width    int
	height   int
	quitting bool
	now      func() time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type liveTickMsg time.Time

// statusClearMsg clears the status line unless a newer status replaced it
type statusClearMsg struct {
	seq int
}

// opDoneMsg reports the end of an engine call started from a key
type opDoneMsg struct {
	op  string
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newLiveModel(ctx context.Context, e *engine) liveModel {
	return liveModel{
		ctx:           ctx,
		e:             e,
		connInfo:      e.connInfo,
		state:         e.session.State(),
		status:        deck.StatusDisconnected,
		snap:          e.router.Snapshot(),
		bar:           progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		stats:         deckproto.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: maxLiveLogLength,
		width:         80,
		height:        24,
		now:           time.Now,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m liveModel) Init() tea.Cmd {
	return liveTickCmd()
}

func liveTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return liveTickMsg(t)
	})
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case liveTickMsg:
		// Timers render from their targets; the tick only repaints
		m.stats.CalculateRates()
		return m, liveTickCmd()

	case statusMsg:
		m.status = string(msg)
		m.statusSeq++
		m.addLogEntry(m.status, strings.HasPrefix(m.status, "Error"))
		if !strings.HasPrefix(m.status, "Uploading") {
			m.progress = nil
		}
		if d := statusClearDelay(m.status); d > 0 {
			seq := m.statusSeq
			return m, tea.Tick(d, func(time.Time) tea.Msg {
				return statusClearMsg{seq: seq}
			})
		}

	case statusClearMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}

	case progressMsg:
		p := deck.Progress(msg)
		m.progress = &p

	case eventMsg:
		m.applyEvent(msg.ev)

	case alertMsg:
		m.addLogEntry(fmt.Sprintf("%s: %s", msg.title, msg.detail), true)

	case notifyMsg:
		m.addLogEntry(fmt.Sprintf("%s: %s", msg.title, msg.body), false)

	case lineMsg:
		m.recordLine(msg)

	case confirmMsg:
		m.confirm = &msg

	case opDoneMsg:
		if m.busy == msg.op {
			m.busy = ""
		}
		if msg.err != nil && !errors.Is(msg.err, deck.ErrUploadCancelled) {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.op, msg.err), true)
		}
		m.snap = m.e.router.Snapshot()
	}

	return m, nil
}

// statusClearDelay returns how long a status stays on screen, or 0 for
// statuses that last until replaced.
func statusClearDelay(status string) time.Duration {
	switch {
	case strings.HasPrefix(status, "Error"):
		return 8 * time.Second
	case strings.HasPrefix(status, "Success"),
		status == deck.StatusUpToDate,
		status == deck.StatusCancelled:
		return 5 * time.Second
	case status == deck.StatusNotFound:
		return 3 * time.Second
	}
	return 0
}

func (m *liveModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		return m.handleConfirmKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		m.moveCursor(0, -1)
	case "down", "j":
		m.moveCursor(0, 1)
	case "left", "h":
		m.moveCursor(-1, 0)
	case "right", "l":
		m.moveCursor(1, 0)

	case "enter", " ":
		page, idx := m.snap.Page, m.cursor
		return m, m.run("press", func(ctx context.Context) error {
			return m.e.session.Press(ctx, page, idx)
		})

	case "[", "pgup":
		return m, m.showPage(m.snap.Page - 1)
	case "]", "pgdown":
		return m, m.showPage(m.snap.Page + 1)

	case "s":
		if m.state != deck.StateDisconnected {
			m.addLogEntry("Already "+m.state.String(), false)
			return m, nil
		}
		return m, m.start("search", func(ctx context.Context) error {
			if !m.e.discovery.Search(ctx) {
				return errors.New(deck.StatusNotFound)
			}
			return nil
		})

	case "d":
		return m, m.run("disconnect", func(context.Context) error {
			m.e.session.Disconnect()
			return nil
		})

	case "u":
		return m, m.start("upload", func(ctx context.Context) error {
			_, err := m.e.uploader.Upload(ctx, deck.UploadOptions{})
			return err
		})

	case "+", "=":
		return m, m.setBrightness(brightnessStep)
	case "-", "_":
		return m, m.setBrightness(-brightnessStep)
	}

	return m, nil
}

func (m *liveModel) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	choice, ok := confirmKeys[msg.String()]
	if !ok {
		return m, nil
	}
	m.confirm.reply <- choice
	m.confirm = nil
	return m, nil
}

var confirmKeys = map[string]deck.UploadChoice{
	"c":      deck.UploadChangedOnly,
	"enter":  deck.UploadChangedOnly,
	"f":      deck.UploadFull,
	"n":      deck.UploadCancel,
	"esc":    deck.UploadCancel,
	"q":      deck.UploadCancel,
	"ctrl+c": deck.UploadCancel,
}

// run performs fn off the UI goroutine
func (m *liveModel) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

// start is run for long operations, of which only one runs at a time
func (m *liveModel) start(op string, fn func(ctx context.Context) error) tea.Cmd {
	if m.busy != "" {
		m.addLogEntry(fmt.Sprintf("Cannot %s: %s in progress", op, m.busy), true)
		return nil
	}
	m.busy = op
	return m.run(op, fn)
}

func (m *liveModel) showPage(page int) tea.Cmd {
	if !m.snap.Config.HasPage(page) {
		return nil
	}
	m.cursor = 0
	return m.run("page", func(context.Context) error {
		return m.e.router.ShowPage(page)
	})
}

func (m *liveModel) setBrightness(delta int) tea.Cmd {
	percent := max(0, min(100, m.snap.Config.DeviceSettings.Brightness+delta))
	m.snap.Config.DeviceSettings.Brightness = percent
	return m.run("brightness", func(context.Context) error {
		err := m.e.session.SetBrightness(percent)
		if errors.Is(err, deck.ErrNotConnected) {
			return nil
		}
		return err
	})
}

func (m *liveModel) moveCursor(dx, dy int) {
	cols, rows := gridSize(m.snap.Config)
	x, y := m.cursor%cols, m.cursor/cols
	x = max(0, min(cols-1, x+dx))
	y = max(0, min(rows-1, y+dy))
	m.cursor = y*cols + x
}

func (m *liveModel) applyEvent(ev deck.Event) {
	switch ev := ev.(type) {
	case deck.SessionChanged:
		m.state = ev.State
		m.port = ev.Port
		m.device = ev.Device
		switch ev.State {
		case deck.StateConnected:
			m.addLogEntry(fmt.Sprintf("Connected to %s on %s", ev.Device, ev.Port), false)
		case deck.StateDisconnected:
			m.progress = nil
		}
	case deck.PageChanged:
		if ev.Page != m.snap.Page {
			m.cursor = 0
		}
	}
	m.snap = m.e.router.Snapshot()
}

func (m *liveModel) recordLine(msg lineMsg) {
	if errors.Is(msg.err, deckproto.ErrLineTooLong) {
		m.stats.RecordOverflow()
		m.addLogEntry("Dropped overlong line", true)
		return
	}
	m.stats.Update(msg.msg, msg.err)
	if msg.err != nil && !errors.Is(msg.err, deckproto.ErrUnknownMessage) {
		m.addLogEntry(fmt.Sprintf("Bad line %q: %v", msg.line, msg.err), true)
	}
}

func (m *liveModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: m.now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// Cells
//////////////////////////////////////////////////////////////

func gridSize(cfg *store.Config) (int, int) {
	if cfg == nil {
		return 1, 1
	}
	return max(1, cfg.Grid.Cols), max(1, cfg.Grid.Rows)
}

// cellLabel is what the deck currently shows on a cell: a running
// countdown, a label override, or the configured label.
func cellLabel(snap deck.Snapshot, page, idx int, now time.Time) string {
	k := deck.Key{Page: page, Button: idx}
	if target, ok := snap.Timers[k]; ok {
		left := target.Sub(now)
		secs := 0
		if left > 0 {
			secs = int((left + time.Second - 1) / time.Second)
		}
		return deckproto.FormatClock(secs)
	}
	if text, ok := snap.Labels[k]; ok {
		return text
	}
	if v, ok := snap.Counters[k]; ok {
		return strconv.Itoa(v)
	}
	btn := snap.Config.Button(page, idx)
	if !btn.Filled() {
		return ""
	}
	return btn.DisplayLabel(idx)
}

// describeButton summarizes the configured action
func describeButton(btn *store.Button) string {
	if !btn.Filled() {
		return "(empty)"
	}
	switch btn.Type {
	case store.TypeKey:
		return "key " + btn.Combo
	case store.TypeToggle:
		state := "off"
		if btn.ToggleState {
			state = "on"
		}
		return "toggle, " + state
	case store.TypeGoto:
		return fmt.Sprintf("go to page %d", btn.GotoPage+1)
	case store.TypeCounter:
		return fmt.Sprintf("counter from %d", btn.CounterStartValue)
	case store.TypeTimer:
		return "timer " + deckproto.FormatClock(btn.TimerDuration)
	case store.TypeText:
		return "type text"
	case store.TypeApp:
		return "open " + btn.AppPath
	case store.TypeScript:
		return "run " + btn.CustomScript
	case store.TypeWebsite:
		return "browse " + btn.WebsiteURL
	case store.TypeMedia:
		return "media " + btn.MediaAction
	case store.TypeSound:
		return "play " + btn.SoundPath
	}
	return btn.Type
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Width(cellWidth).
			Align(lipgloss.Center)

	selectedCellStyle = cellStyle.
				BorderForeground(lipgloss.Color("12"))

	toggleOnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("10"))
)

func (m liveModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("DECKHAND LIVE"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit enter=press [ ]=page s=search u=upload d=disconnect +/-=brightness", m.connInfo)))
	s.WriteString("\n")
	s.WriteString(m.renderSession())
	s.WriteString("\n\n")

	if m.confirm != nil {
		s.WriteString(m.renderConfirm())
	} else {
		s.WriteString(m.renderGrid())
	}
	s.WriteString("\n")

	if m.progress != nil {
		s.WriteString(m.renderProgress())
		s.WriteString("\n")
	}

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")
	s.WriteString(m.renderEventLog())

	return s.String()
}

func (m liveModel) renderSession() string {
	state := warningStyle.Render(m.state.String())
	if m.state == deck.StateConnected {
		state = statsValueStyle.Render(fmt.Sprintf("%s (%s on %s)", m.state, m.device, m.port))
	}
	line := fmt.Sprintf(" %s %s  %s %s",
		statsLabelStyle.Render("Deck:"), state,
		statsLabelStyle.Render("Status:"), m.status)
	if m.busy != "" {
		line += "  " + warningStyle.Render(m.busy+"...")
	}
	return line
}

func (m liveModel) renderGrid() string {
	cfg := m.snap.Config
	if cfg == nil {
		return boxStyle.Render(headerStyle.Render("(no configuration)"))
	}
	cols, rows := gridSize(cfg)
	page := m.snap.Page
	now := m.now()

	var s strings.Builder
	s.WriteString(statsLabelStyle.Render(fmt.Sprintf("%s (%d/%d)", cfg.PageName(page), page+1, len(cfg.Pages))))
	s.WriteString("\n")

	for y := 0; y < rows; y++ {
		cells := make([]string, 0, cols)
		for x := 0; x < cols; x++ {
			idx := y*cols + x
			label := cellLabel(m.snap, page, idx, now)
			if btn := cfg.Button(page, idx); btn.IsToggle() && btn.ToggleState {
				label = toggleOnStyle.Render(label)
			}
			style := cellStyle
			if idx == m.cursor {
				style = selectedCellStyle
			}
			cells = append(cells, style.Render(truncate(label, cellWidth)))
		}
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		s.WriteString("\n")
	}

	s.WriteString(fmt.Sprintf("%s %s", headerStyle.Render("Selected:"), describeButton(cfg.Button(page, m.cursor))))
	return boxStyle.Render(s.String())
}

func truncate(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) > n-1 {
		r = r[:n-1]
	}
	return string(r) + "…"
}

func (m liveModel) renderConfirm() string {
	plan := m.confirm.plan
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("UPLOAD"))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("%d file(s) changed, %d unchanged\n\n", len(plan.Changed), len(plan.Unchanged)))

	const shown = 10
	for i, f := range plan.Changed {
		if i == shown {
			s.WriteString(headerStyle.Render(fmt.Sprintf("  ... and %d more\n", len(plan.Changed)-shown)))
			break
		}
		s.WriteString(fmt.Sprintf("  * %s %s\n", f.Name, headerStyle.Render(fmt.Sprintf("(%d bytes)", len(f.Data)))))
	}
	s.WriteString("\n")
	s.WriteString(warningStyle.Render("c=changed only  f=full  n=cancel"))
	return boxStyle.BorderForeground(lipgloss.Color("12")).Render(s.String())
}

func (m liveModel) renderProgress() string {
	p := m.progress
	percent := 0.0
	if p.Total > 0 {
		percent = float64(p.Index) / float64(p.Total)
	}
	return fmt.Sprintf(" %s %s %s (%d/%d)",
		statsLabelStyle.Render("Upload:"),
		m.bar.ViewAs(percent),
		p.File, p.Index, p.Total)
}

func (m liveModel) renderStatisticsBar() string {
	st := m.stats
	errCount := st.ParseErrors + st.Overflows
	errText := statsValueStyle.Render(strconv.FormatUint(errCount, 10))
	if errCount > 0 {
		errText = errorStyle.Render(strconv.FormatUint(errCount, 10))
	}
	return fmt.Sprintf(" %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Lines:"), statsValueStyle.Render(strconv.FormatUint(st.TotalLines, 10)),
		statsLabelStyle.Render("Unknown:"), statsValueStyle.Render(strconv.FormatUint(st.UnknownLines, 10)),
		statsLabelStyle.Render("Errors:"), errText,
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", st.LineRate)))
}

func (m liveModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	// Calculate available height for log
	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(max(20, m.width-4)).Render(s.String())
}
