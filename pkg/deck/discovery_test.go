// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newDiscoveryFixture(t *testing.T, drv *fakeDriver, ports ...*Port) (*Discovery, *Session, *recordingNotifier) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	n := &recordingNotifier{}
	s := NewSession(SessionOptions{
		Timings:  fastTimings(),
		Router:   NewRouter(RouterOptions{Config: togglePageConfig(), Log: log}),
		Notifier: n,
		Log:      log,
	})
	d := NewDiscovery(DiscoveryOptions{
		Registry: NewStaticRegistry(ports...),
		Session:  s,
		Notifier: n,
		Timings:  fastTimings(),
		Log:      log,
	})
	t.Cleanup(s.Disconnect)
	return d, s, n
}

func TestPassConnectsFirstDeck(t *testing.T) {
	drv := newFakeDriver()
	other := drv.add("/dev/ttyACM0", newFakeDevice(deckScript("Thermostat")))
	silent := drv.add("/dev/ttyACM1", newFakeDevice(nil))
	deck := drv.add("/dev/ttyACM2", newFakeDevice(deckScript("SmartDeck")))
	spare := newFakeDevice(deckScript("Smart Deck"))
	second := drv.add("/dev/ttyACM3", spare)

	d, s, _ := newDiscoveryFixture(t, drv, other, silent, deck, second)

	if !d.Pass(context.Background()) {
		t.Fatal("Pass() = false, want a connection")
	}
	eventually(t, "connected", func() bool { return s.State() == StateConnected })

	if got := s.PortName(); got != "/dev/ttyACM2" {
		t.Errorf("connected to %s", got)
	}
	if spare.openCount() != 0 {
		t.Error("scan continued after the first deck")
	}
	if other.IsOpen() || silent.IsOpen() {
		t.Error("probed ports left open")
	}
}

func TestPassNothingFound(t *testing.T) {
	drv := newFakeDriver()
	silent := drv.add("/dev/ttyACM0", newFakeDevice(nil))
	d, s, _ := newDiscoveryFixture(t, drv, silent)

	if d.Pass(context.Background()) {
		t.Error("Pass() = true with no deck")
	}
	if s.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", s.State())
	}
}

func TestPassIsSingleFlight(t *testing.T) {
	drv := newFakeDriver()
	dev := newFakeDevice(deckScript("SmartDeck"))
	p := drv.add("/dev/ttyACM0", dev)
	drv.gate = make(chan struct{})
	drv.opening = make(chan string, 1)

	d, s, _ := newDiscoveryFixture(t, drv, p)

	first := make(chan bool)
	go func() { first <- d.Pass(context.Background()) }()

	select {
	case <-drv.opening:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never opened the port")
	}
	if !d.Scanning() {
		t.Error("Scanning() = false during a pass")
	}
	if d.Pass(context.Background()) {
		t.Error("overlapping Pass() should be a no-op")
	}

	drv.mu.Lock()
	drv.opening = nil
	drv.mu.Unlock()
	close(drv.gate)

	if !<-first {
		t.Error("first Pass() did not connect")
	}
	eventually(t, "connected", func() bool { return s.State() == StateConnected })
	if got := dev.openCount(); got != 2 {
		t.Errorf("opens = %d, want identify + connect", got)
	}
}

func TestSearch(t *testing.T) {
	t.Run("exhausted", func(t *testing.T) {
		drv := newFakeDriver()
		d, _, n := newDiscoveryFixture(t, drv, drv.add("/dev/ttyACM0", newFakeDevice(nil)))

		if d.Search(context.Background()) {
			t.Fatal("Search() = true with no deck")
		}
		for _, want := range []string{"Searching.", "Searching..", "Searching..."} {
			if !n.hasStatus(want) {
				t.Errorf("missing status %q in %v", want, n.statuses)
			}
		}
		if got := n.lastStatus(); got != StatusNotFound {
			t.Errorf("last status = %q, want %q", got, StatusNotFound)
		}
	})

	t.Run("found", func(t *testing.T) {
		drv := newFakeDriver()
		d, s, n := newDiscoveryFixture(t, drv, drv.add("/dev/ttyACM0", newFakeDevice(deckScript("SmartDeck"))))

		if !d.Search(context.Background()) {
			t.Fatal("Search() = false")
		}
		eventually(t, "connected", func() bool { return s.State() == StateConnected })
		if n.hasStatus(StatusNotFound) {
			t.Error("reported not found after connecting")
		}
	})

	t.Run("superseded", func(t *testing.T) {
		drv := newFakeDriver()
		p := drv.add("/dev/ttyACM0", newFakeDevice(deckScript("SmartDeck")))
		d, s, n := newDiscoveryFixture(t, drv)

		if err := s.Connect(context.Background(), p); err != nil {
			t.Fatal(err)
		}
		if !d.Search(context.Background()) {
			t.Error("Search() = false while already connecting")
		}
		if n.hasStatus("Searching.") {
			t.Error("superseded search still probed")
		}
	})
}

func TestRunPassive(t *testing.T) {
	drv := newFakeDriver()
	dev := newFakeDevice(deckScript("SmartDeck"))
	d, s, _ := newDiscoveryFixture(t, drv, drv.add("/dev/ttyACM0", dev))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	eventually(t, "passive connect", func() bool { return s.State() == StateConnected })
	opens := dev.openCount()

	time.Sleep(3 * fastTimings().PassiveInterval)
	if got := dev.openCount(); got != opens {
		t.Errorf("passive loop probed while connected: opens %d -> %d", opens, got)
	}

	s.Disconnect()
	eventually(t, "passive reconnect", func() bool { return s.State() == StateConnected })
}

func TestWatchHotplug(t *testing.T) {
	dir := t.TempDir()
	drv := newFakeDriver()
	dev := newFakeDevice(deckScript("SmartDeck"))
	name := filepath.Join(dir, "ttyACM0")
	p := drv.add(name, dev)
	d, s, _ := newDiscoveryFixture(t, drv, p)

	// A passive loop that only reacts to triggers.
	d.timings.PassiveInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watching := make(chan error, 1)
	go func() { watching <- d.WatchHotplug(ctx, dir) }()

	// Drain the initial pass, which finds nothing until the node exists.
	drv.mu.Lock()
	delete(drv.devices, name)
	drv.mu.Unlock()
	go d.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	drv.mu.Lock()
	drv.devices[name] = dev
	drv.mu.Unlock()
	if err := os.WriteFile(name, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	eventually(t, "hotplug connect", func() bool { return s.State() == StateConnected })

	if err := os.Remove(name); err != nil {
		t.Fatal(err)
	}
	eventually(t, "hotplug disconnect", func() bool { return s.PortName() != name })

	cancel()
	select {
	case <-watching:
	case <-time.After(2 * time.Second):
		t.Error("WatchHotplug did not return after cancel")
	}
}

func TestIsSerialNode(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"/dev/ttyUSB0", true},
		{"/dev/ttyACM3", true},
		{"/dev/cu.usbmodem101", true},
		{"/dev/tty1", false},
		{"/dev/null", false},
	}
	for _, tt := range tests {
		if got := isSerialNode(tt.name); got != tt.want {
			t.Errorf("isSerialNode(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
