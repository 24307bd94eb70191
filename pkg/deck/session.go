// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/deckhand/pkg/deckproto"
	"github.com/Thermoquad/deckhand/pkg/store"
)

var (
	ErrNotConnected = errors.New("device not connected")
	ErrBusy         = errors.New("session busy")
	ErrNoPort       = errors.New("no port available")
)

// LineObserver sees every inbound line with its decode result. It runs on
// the listener goroutine and must not block.
type LineObserver func(line string, msg deckproto.Message, err error)

// loopControl is implemented by the discovery loop.
type loopControl interface {
	Suspend()
	Resume()
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Baud     int
	Timings  Timings
	Router   *Router
	Notifier Notifier
	Observer LineObserver
	Log      *zap.SugaredLogger
}

// Session owns the single active connection to the deck.
type Session struct {
	baud     int
	timings  Timings
	router   *Router
	notifier Notifier
	observer LineObserver
	log      *zap.SugaredLogger

	mu           sync.Mutex
	state        State
	changed      chan struct{}
	port         *Port
	reader       *Reader
	listening    bool
	listenerDone chan struct{}
	stopListener context.CancelFunc
	device       string
	epoch        uint64
	syncTimer    *time.Timer
	loop         loopControl
}

// NewSession creates a disconnected session.
func NewSession(opts SessionOptions) *Session {
	if opts.Baud <= 0 {
		opts.Baud = deckproto.BaudRate
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	return &Session{
		baud:     opts.Baud,
		timings:  opts.Timings,
		router:   opts.Router,
		notifier: opts.Notifier,
		observer: opts.Observer,
		log:      opts.Log,
		state:    StateDisconnected,
		changed:  make(chan struct{}),
	}
}

func (s *Session) setLoop(l loopControl) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = l
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the name reported by the connected deck.
func (s *Session) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// PortName returns the name of the active port, if any.
func (s *Session) PortName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ""
	}
	return s.port.Name()
}

// Listening reports whether a line listener is attached.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Router returns the message router the session dispatches to.
func (s *Session) Router() *Router {
	return s.router
}

// WaitState blocks until the session reaches want or ctx is done.
func (s *Session) WaitState(ctx context.Context, want State) error {
	for {
		s.mu.Lock()
		state, changed := s.state, s.changed
		s.mu.Unlock()
		if state == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// setStateLocked validates and applies a transition and returns the event
// to emit once the lock is released.
func (s *Session) setStateLocked(to State) (Event, error) {
	if !CanTransition(s.state, to) {
		return nil, &ErrInvalidTransition{From: s.state, To: to}
	}
	if s.state == to {
		return nil, nil
	}
	s.state = to
	close(s.changed)
	s.changed = make(chan struct{})

	ev := SessionChanged{State: to, Device: s.device}
	if s.port != nil {
		ev.Port = s.port.Name()
	}
	return ev, nil
}

func (s *Session) emit(ev Event) {
	if ev != nil {
		s.notifier.Event(ev)
	}
}

// beginIdentify moves a disconnected session to identifying.
func (s *Session) beginIdentify() bool {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return false
	}
	ev, _ := s.setStateLocked(StateIdentifying)
	s.mu.Unlock()
	s.emit(ev)
	return true
}

// endIdentify returns an identifying session to disconnected.
func (s *Session) endIdentify() {
	s.mu.Lock()
	if s.state != StateIdentifying {
		s.mu.Unlock()
		return
	}
	ev, _ := s.setStateLocked(StateDisconnected)
	s.mu.Unlock()
	s.emit(ev)
}

// Connect opens p, starts the listener and sends the handshake probe. The
// session becomes connected when PONG_DECK arrives. Connecting while
// already connecting or connected does nothing.
func (s *Session) Connect(ctx context.Context, p *Port) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateConnected:
		s.mu.Unlock()
		return nil
	case StateUploading:
		s.mu.Unlock()
		return ErrBusy
	}

	ForceFree(p)
	if err := p.Open(s.baud); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("open %s: %w", p.Name(), err)
	}
	r, err := p.AcquireReader()
	if err != nil {
		s.mu.Unlock()
		ForceFree(p)
		return fmt.Errorf("lock %s: %w", p.Name(), err)
	}

	s.epoch++
	epoch := s.epoch
	s.port = p
	s.reader = r
	s.device = ""
	ev, err := s.setStateLocked(StateConnecting)
	if err != nil {
		s.port, s.reader = nil, nil
		s.mu.Unlock()
		ForceFree(p)
		return err
	}

	listenCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.listening = true
	s.listenerDone = done
	s.stopListener = stop
	s.mu.Unlock()

	go s.listen(listenCtx, epoch, r, done)

	s.log.Infow("connecting", "port", p.Name())
	s.notifier.Status("Connecting: " + p.Name())
	s.emit(ev)

	if err := p.WriteString(deckproto.Ping()); err != nil {
		s.teardown(epoch, true)
		return fmt.Errorf("send handshake: %w", err)
	}
	return nil
}

// Disconnect tears the connection down and resumes discovery. It is a
// no-op when nothing is connected and is refused during an upload.
func (s *Session) Disconnect() {
	s.teardown(0, true)
}

// teardown disconnects if epoch is 0 or still current. wait bounds a wait
// for the listener goroutine to return.
func (s *Session) teardown(epoch uint64, wait bool) {
	s.mu.Lock()
	if epoch != 0 && epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	if s.state == StateUploading {
		s.mu.Unlock()
		s.log.Debug("disconnect refused during upload")
		return
	}
	if s.port == nil && s.state != StateConnecting && s.state != StateConnected {
		s.mu.Unlock()
		return
	}

	p, r, done, stop := s.port, s.reader, s.listenerDone, s.stopListener
	s.port, s.reader, s.device = nil, nil, ""
	s.listenerDone, s.stopListener = nil, nil
	s.epoch++
	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.syncTimer = nil
	}
	ev, _ := s.setStateLocked(StateDisconnected)
	loop := s.loop
	s.mu.Unlock()

	if r != nil {
		r.Cancel()
		r.Release()
	}
	if stop != nil {
		stop()
	}
	CloseQuietly(p)

	if wait && done != nil {
		select {
		case <-done:
		case <-time.After(s.timings.ListenerExit):
			s.log.Warn("listener did not exit in time")
		}
	}

	s.log.Info("disconnected")
	s.notifier.Status(StatusDisconnected)
	s.emit(ev)
	if loop != nil {
		loop.Resume()
	}
}

// handshake completes a connection after PONG_DECK.
func (s *Session) handshake(epoch uint64, name string) {
	s.mu.Lock()
	if epoch != s.epoch || (s.state != StateConnecting && s.state != StateConnected) {
		s.mu.Unlock()
		return
	}
	s.device = name
	ev, _ := s.setStateLocked(StateConnected)
	if s.syncTimer != nil {
		s.syncTimer.Stop()
	}
	s.syncTimer = time.AfterFunc(s.timings.SyncDelay, func() { s.requestSync(epoch) })
	loop := s.loop
	s.mu.Unlock()

	s.log.Infow("connected", "device", name)
	s.notifier.Status("Connected: " + name)
	s.emit(ev)
	if loop != nil {
		loop.Suspend()
	}
}

// requestSync sends GET_SYNC if the handshake's connection is still live.
func (s *Session) requestSync(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != StateConnected || s.port == nil {
		s.mu.Unlock()
		return
	}
	p := s.port
	s.mu.Unlock()

	if err := p.WriteString(deckproto.GetSync()); err != nil {
		s.log.Warnw("sync request failed", "error", err)
	}
}

// Send writes a protocol line to the connected deck.
func (s *Session) Send(line string) error {
	s.mu.Lock()
	if s.port == nil || (s.state != StateConnecting && s.state != StateConnected) {
		s.mu.Unlock()
		return ErrNotConnected
	}
	p := s.port
	s.mu.Unlock()
	return p.WriteString(line)
}

// Press runs a button as if it were pressed on the device.
func (s *Session) Press(ctx context.Context, page, button int) error {
	if s.router == nil {
		return ErrNotConnected
	}
	return s.router.Press(ctx, page, button, s)
}

// SetBrightness saves the brightness into the configuration and pushes it
// to the deck. The setting is saved even when ErrNotConnected is returned.
func (s *Session) SetBrightness(percent int) error {
	percent = max(0, min(100, percent))
	if s.router != nil {
		err := s.router.UpdateConfig(func(cfg *store.Config) {
			cfg.DeviceSettings.Brightness = percent
		})
		if err != nil {
			return err
		}
	}
	return s.Send(deckproto.SetBrightness(percent))
}

// SetSleep saves the sleep settings and pushes them to the deck.
func (s *Session) SetSleep(enabled bool, minutes int) error {
	minutes = max(0, minutes)
	settings := store.DeviceSettings{SleepEnabled: enabled, SleepMinutes: minutes}
	if s.router != nil {
		err := s.router.UpdateConfig(func(cfg *store.Config) {
			cfg.DeviceSettings.SleepEnabled = enabled
			cfg.DeviceSettings.SleepMinutes = minutes
		})
		if err != nil {
			return err
		}
	}
	return s.Send(deckproto.SetSleep(settings.SleepValue()))
}

// BeginUpload hands the wire to the upload engine. The active port is used
// when there is one, otherwise p. The listener is detached and the port is
// opened if needed. The returned reader is the only reader of the port
// until EndUpload.
func (s *Session) BeginUpload(p *Port) (*Port, *Reader, error) {
	s.mu.Lock()
	switch s.state {
	case StateUploading, StateIdentifying:
		s.mu.Unlock()
		return nil, nil, ErrBusy
	}
	active := s.port != nil
	if active {
		p = s.port
	}
	if p == nil {
		s.mu.Unlock()
		return nil, nil, ErrNoPort
	}

	old, done, stop := s.reader, s.listenerDone, s.stopListener
	s.reader, s.listenerDone, s.stopListener = nil, nil, nil
	s.epoch++
	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.syncTimer = nil
	}
	s.port = p
	ev, err := s.setStateLocked(StateUploading)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	loop := s.loop
	s.mu.Unlock()

	if loop != nil {
		loop.Suspend()
	}
	if old != nil {
		old.Cancel()
		old.Release()
	}
	if stop != nil {
		stop()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(s.timings.ListenerExit):
			s.log.Warn("listener did not exit in time")
		}
	}
	s.emit(ev)

	if !active {
		ForceFree(p)
	}
	if !p.IsOpen() {
		if err := p.Open(s.baud); err != nil {
			s.EndUpload(nil)
			return nil, nil, fmt.Errorf("open %s: %w", p.Name(), err)
		}
	}
	r, err := p.AcquireReader()
	if err != nil {
		s.EndUpload(nil)
		return nil, nil, fmt.Errorf("lock %s: %w", p.Name(), err)
	}
	return p, r, nil
}

// EndUpload releases r, closes the port and clears the connection.
func (s *Session) EndUpload(r *Reader) {
	if r != nil {
		r.Cancel()
		r.Release()
	}

	s.mu.Lock()
	if s.state != StateUploading {
		s.mu.Unlock()
		return
	}
	p := s.port
	s.port, s.reader, s.device = nil, nil, ""
	s.epoch++
	ev, _ := s.setStateLocked(StateDisconnected)
	loop := s.loop
	s.mu.Unlock()

	ForceFree(p)
	s.emit(ev)
	if loop != nil {
		loop.Resume()
	}
}
