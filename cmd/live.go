// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
	"github.com/Thermoquad/deckhand/pkg/deckproto"
)

var liveDesktop bool

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Interactive TUI mirroring the deck and running its buttons",
	Long: `Keep the deck connected and mirror it in an interactive terminal UI.

Features:
  - Passive discovery every 10 seconds and on USB hotplug
  - Page grid with live timers, counters and labels
  - Button actions performed on the host as the deck is pressed
  - Local presses, page switching and brightness control
  - Smart upload with a changed/full confirmation
  - Line statistics and event logging

Keys:
  arrows     select a button     enter   press it
  [ ]        previous/next page  s       search now
  u          upload              d       disconnect
  + -        brightness          q       quit

Logs are discarded unless --log-file is given.`,
	RunE: runLive,
}

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.Flags().BoolVar(&liveDesktop, "desktop-notify", true, "Raise desktop notifications for finished timers")
	addIconsFlag(liveCmd)
}

// Messages from the engine
type statusMsg string

type progressMsg deck.Progress

type eventMsg struct{ ev deck.Event }

type alertMsg struct{ title, detail string }

type notifyMsg struct{ title, body string }

type lineMsg struct {
	line string
	msg  deckproto.Message
	err  error
}

type confirmMsg struct {
	plan  deck.Plan
	reply chan deck.UploadChoice
}

// tuiNotifier forwards engine callbacks to the program in order. The queue
// never blocks the engine; messages are dropped when it is full.
type tuiNotifier struct {
	queue   chan tea.Msg
	dropped atomic.Int64

	mu sync.Mutex
	p  *tea.Program
}

func newTUINotifier() *tuiNotifier {
	return &tuiNotifier{queue: make(chan tea.Msg, 1024)}
}

// run delivers queued messages to p until ctx is done
func (n *tuiNotifier) run(ctx context.Context, p *tea.Program) {
	n.mu.Lock()
	n.p = p
	n.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			p.Send(msg)
		}
	}
}

func (n *tuiNotifier) send(msg tea.Msg) {
	select {
	case n.queue <- msg:
	default:
		n.dropped.Add(1)
	}
}

func (n *tuiNotifier) Status(text string)         { n.send(statusMsg(text)) }
func (n *tuiNotifier) Progress(p deck.Progress)   { n.send(progressMsg(p)) }
func (n *tuiNotifier) Event(ev deck.Event)        { n.send(eventMsg{ev}) }
func (n *tuiNotifier) Alert(title, detail string) { n.send(alertMsg{title, detail}) }
func (n *tuiNotifier) Notify(title, body string)  { n.send(notifyMsg{title, body}) }

// observe is the session's line observer
func (n *tuiNotifier) observe(line string, msg deckproto.Message, err error) {
	n.send(lineMsg{line, msg, err})
}

// Confirm shows the plan in a dialog and waits for the answer
func (n *tuiNotifier) Confirm(ctx context.Context, plan deck.Plan) (deck.UploadChoice, error) {
	reply := make(chan deck.UploadChoice, 1)
	select {
	case n.queue <- confirmMsg{plan, reply}:
	case <-ctx.Done():
		return deck.UploadCancel, ctx.Err()
	}
	select {
	case choice := <-reply:
		return choice, nil
	case <-ctx.Done():
		return deck.UploadCancel, ctx.Err()
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	notifier := newTUINotifier()
	e, err := newEngine(engineOptions{
		Notifier: notifier,
		Observer: notifier.observe,
		Desktop:  liveDesktop,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := newLiveModel(ctx, e)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go notifier.run(ctx, p)
	go func() {
		if err := e.discovery.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnw("discovery stopped", "error", err)
		}
	}()
	if runtime.GOOS == "linux" {
		go func() {
			if err := e.discovery.WatchHotplug(ctx, "/dev"); err != nil {
				notifier.Alert("Hotplug unavailable", err.Error())
			}
		}()
	}

	_, err = p.Run()
	cancel()
	e.session.Disconnect()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	if n := notifier.dropped.Load(); n > 0 {
		logger.Infow("notifications dropped while the UI was busy", "count", n)
	}
	return nil
}
