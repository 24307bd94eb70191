// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DiscoveryOptions configures a Discovery loop.
type DiscoveryOptions struct {
	Registry   Registry
	Identifier *Identifier
	Session    *Session
	Notifier   Notifier
	Timings    Timings
	Log        *zap.SugaredLogger
}

// Discovery finds the deck among the registry's ports and connects the
// session to it.
type Discovery struct {
	registry   Registry
	identifier *Identifier
	session    *Session
	notifier   Notifier
	timings    Timings
	log        *zap.SugaredLogger

	scanning  atomic.Bool
	suspended atomic.Bool
	trigger   chan struct{}
}

// NewDiscovery creates the loop and registers it with the session, which
// suspends it while connected.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Identifier == nil {
		opts.Identifier = NewIdentifier(0, opts.Timings.HandshakeTimeout, opts.Log)
	}
	d := &Discovery{
		registry:   opts.Registry,
		identifier: opts.Identifier,
		session:    opts.Session,
		notifier:   opts.Notifier,
		timings:    opts.Timings,
		log:        opts.Log,
		trigger:    make(chan struct{}, 1),
	}
	opts.Session.setLoop(d)
	return d
}

// Pass probes every port once and connects to the first deck. Only one
// pass runs at a time; an overlapping call returns false immediately.
// It reports whether a connection was started.
func (d *Discovery) Pass(ctx context.Context) bool {
	if !d.scanning.CompareAndSwap(false, true) {
		d.log.Debug("discovery pass already running")
		return false
	}
	defer d.scanning.Store(false)
	return d.scan(ctx)
}

// Scanning reports whether a pass is in flight.
func (d *Discovery) Scanning() bool {
	return d.scanning.Load()
}

func (d *Discovery) scan(ctx context.Context) bool {
	if !d.session.beginIdentify() {
		return false
	}
	connected := false
	defer func() {
		if !connected {
			d.session.endIdentify()
		}
	}()

	ports, err := d.registry.List(ctx)
	if err != nil {
		d.log.Debugw("list ports failed", "error", err)
		return false
	}

	for _, p := range ports {
		if ctx.Err() != nil {
			return false
		}
		name, ok := d.identifier.Identify(ctx, p)
		if !ok {
			continue
		}
		if !IsDeckName(name) {
			d.log.Debugw("not a deck", "port", p.Name(), "name", name)
			continue
		}
		if err := d.session.Connect(ctx, p); err != nil {
			d.log.Warnw("connect failed", "port", p.Name(), "error", err)
			continue
		}
		connected = true
		return true
	}
	return false
}

// Search retries passes for a bounded number of rounds. It stops early
// when a connection starts, including one started elsewhere, and reports
// the not-found status on exhaustion.
func (d *Discovery) Search(ctx context.Context) bool {
	for i := 0; i < d.timings.SearchRounds; i++ {
		switch d.session.State() {
		case StateConnecting, StateConnected:
			return true
		case StateUploading:
			return false
		}

		d.notifier.Status("Searching" + strings.Repeat(".", i%3+1))
		if d.Pass(ctx) {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.timings.SearchDelay):
		}
	}

	switch d.session.State() {
	case StateConnecting, StateConnected:
		return true
	}
	d.notifier.Status(StatusNotFound)
	return false
}

// Run is the passive loop. It passes once immediately and then on every
// tick or trigger while disconnected and not suspended.
func (d *Discovery) Run(ctx context.Context) error {
	d.passive(ctx)

	ticker := time.NewTicker(d.timings.PassiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.passive(ctx)
		case <-d.trigger:
			d.passive(ctx)
		}
	}
}

func (d *Discovery) passive(ctx context.Context) {
	if d.suspended.Load() || d.session.State() != StateDisconnected {
		return
	}
	d.Pass(ctx)
}

// Trigger asks the passive loop for a pass without waiting for the tick.
func (d *Discovery) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Suspend stops passive passes.
func (d *Discovery) Suspend() {
	d.suspended.Store(true)
}

// Resume restarts passive passes.
func (d *Discovery) Resume() {
	d.suspended.Store(false)
}

// Suspended reports whether passive passes are stopped.
func (d *Discovery) Suspended() bool {
	return d.suspended.Load()
}

// ttyPrefixes match device nodes of USB serial adapters.
var ttyPrefixes = []string{"ttyUSB", "ttyACM", "cu.usb", "tty.usb"}

func isSerialNode(name string) bool {
	base := filepath.Base(name)
	for _, p := range ttyPrefixes {
		if strings.HasPrefix(base, p) {
			return true
		}
	}
	return false
}

// WatchHotplug watches dir for serial device nodes. A node appearing
// triggers a pass after the settle delay; the active port disappearing
// disconnects the session. It returns when ctx is done.
func (d *Discovery) WatchHotplug(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	d.log.Debugw("watching for serial devices", "dir", dir)

	settle := debounce.New(d.timings.HotplugSettle)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSerialNode(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				d.log.Debugw("serial device added", "name", ev.Name)
				settle(d.Trigger)
			case ev.Has(fsnotify.Remove):
				d.log.Debugw("serial device removed", "name", ev.Name)
				if d.session.PortName() == ev.Name && d.session.State() != StateUploading {
					d.session.Disconnect()
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.Warnw("watcher error", "error", err)
		}
	}
}
