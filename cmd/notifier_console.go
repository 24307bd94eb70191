// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

// consoleNotifier reports engine progress on the terminal
type consoleNotifier struct {
	out io.Writer
	in  io.Reader

	mu       sync.Mutex
	last     string
	progress *mpb.Progress
	bar      *mpb.Bar
	file     atomic.Value
}

func newConsoleNotifier() *consoleNotifier {
	return &consoleNotifier{out: os.Stdout, in: os.Stdin}
}

func (c *consoleNotifier) Status(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Search repeats its dots; print each distinct status once
	if text == c.last || c.progress != nil {
		c.last = text
		return
	}
	c.last = text
	fmt.Fprintf(c.out, "%s\n", text)
}

func (c *consoleNotifier) Progress(p deck.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.progress == nil || p.Index == 1 {
		c.finishLocked()
		c.progress = mpb.New(mpb.WithOutput(c.out), mpb.WithWidth(40))
		c.bar = c.progress.AddBar(int64(p.Total),
			mpb.PrependDecorators(
				decor.Any(func(decor.Statistics) string { return c.currentFile() }, decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d/%d", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
	}
	c.file.Store(fmt.Sprintf("%s (%d bytes)", p.File, p.Bytes))
	c.bar.SetCurrent(int64(p.Index))
	if p.Index >= p.Total {
		c.finishLocked()
	}
}

func (c *consoleNotifier) currentFile() string {
	// Called from the render goroutine while Progress may hold mu
	name, _ := c.file.Load().(string)
	return name
}

func (c *consoleNotifier) finishLocked() {
	if c.progress == nil {
		return
	}
	if c.bar != nil && !c.bar.Completed() {
		c.bar.Abort(false)
	}
	c.progress.Wait()
	c.progress = nil
	c.bar = nil
}

func (c *consoleNotifier) Event(ev deck.Event) {
	logger.Debugw("event", "type", fmt.Sprintf("%T", ev), "event", ev)
}

func (c *consoleNotifier) Alert(title, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked()
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, detail)
}

func (c *consoleNotifier) Notify(title, body string) {
	fmt.Fprintf(c.out, "[%s] %s\n", title, body)
}

// Confirm shows the plan and reads the choice from stdin
func (c *consoleNotifier) Confirm(ctx context.Context, plan deck.Plan) (deck.UploadChoice, error) {
	fmt.Fprintf(c.out, "\n%d file(s) changed, %d unchanged\n", len(plan.Changed), len(plan.Unchanged))
	for _, f := range plan.Changed {
		fmt.Fprintf(c.out, "  * %s (%d bytes)\n", f.Name, len(f.Data))
	}
	fmt.Fprintf(c.out, "Upload [c]hanged only, [f]ull, or [n]o? ")

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(c.in).ReadString('\n')
		answer <- strings.ToLower(strings.TrimSpace(line))
	}()

	select {
	case <-ctx.Done():
		return deck.UploadCancel, ctx.Err()
	case a := <-answer:
		return parseChoice(a), nil
	}
}

func parseChoice(s string) deck.UploadChoice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "changed", "y", "yes", "":
		return deck.UploadChangedOnly
	case "f", "full", "all":
		return deck.UploadFull
	}
	return deck.UploadCancel
}
