// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/deckhand/pkg/deckproto"
	"github.com/Thermoquad/deckhand/pkg/store"
)

// ErrNoButton is returned when a press names an empty or missing cell.
var ErrNoButton = errors.New("no button")

// Sender writes protocol lines to the deck.
type Sender interface {
	Send(line string) error
}

// ConfigSaver persists the configuration.
type ConfigSaver interface {
	SaveConfig(cfg *store.Config) error
}

// ActionRequest is a button action to perform on the host. Config is a
// copy of the button taken before any toggle flip.
type ActionRequest struct {
	Page   int
	Button int
	Config store.Button
}

// ActionExecutor performs button actions on the host.
type ActionExecutor interface {
	Execute(ctx context.Context, req ActionRequest) error
}

// notificationVolume is the timer-finished sound volume, 0-100.
const notificationVolume = 80

// SoundPlayer plays an audio file. Volume is 0-100.
type SoundPlayer interface {
	Play(ctx context.Context, path string, volume int) error
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Config   *store.Config
	Saver    ConfigSaver
	Executor ActionExecutor
	Sounds   SoundPlayer
	Notifier Notifier
	Now      func() time.Time
	Log      *zap.SugaredLogger
}

// Router applies inbound device messages and button presses to the
// configuration and live state. Handle and Press are serialized.
type Router struct {
	mu       sync.Mutex
	cfg      *store.Config
	saver    ConfigSaver
	executor ActionExecutor
	sounds   SoundPlayer
	notifier Notifier
	live     *LiveState
	log      *zap.SugaredLogger

	// effects queued under mu and run after it is released
	effects []func()
}

// NewRouter creates a router over cfg. The router owns cfg from then on.
func NewRouter(opts RouterOptions) *Router {
	cfg := opts.Config
	if cfg == nil {
		cfg = &store.Config{}
	}
	cfg.EnsureDefaults()
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	return &Router{
		cfg:      cfg,
		saver:    opts.Saver,
		executor: opts.Executor,
		sounds:   opts.Sounds,
		notifier: opts.Notifier,
		live:     NewLiveState(opts.Now),
		log:      opts.Log,
	}
}

// Live returns the live state.
func (r *Router) Live() *LiveState {
	return r.live
}

// Config returns a copy of the configuration.
func (r *Router) Config() *store.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Clone()
}

// CurrentPage returns the displayed page.
func (r *Router) CurrentPage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.CurrentPage
}

// ShowPage switches the displayed page from the host side.
func (r *Router) ShowPage(page int) error {
	r.mu.Lock()
	if !r.cfg.HasPage(page) {
		r.mu.Unlock()
		return fmt.Errorf("page %d out of range", page)
	}
	r.switchPageLocked(page)
	r.unlockAndFlush()
	return nil
}

// UpdateConfig applies fn to the configuration and saves it.
func (r *Router) UpdateConfig(fn func(cfg *store.Config)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.cfg)
	r.cfg.EnsureDefaults()
	if r.saver == nil {
		return nil
	}
	return r.saver.SaveConfig(r.cfg)
}

// Snapshot is a consistent view for front ends.
type Snapshot struct {
	Config   *store.Config
	Page     int
	Timers   map[Key]time.Time
	Counters map[Key]int
	Labels   map[Key]string
}

// Snapshot returns the configuration and live state.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Config:   r.cfg.Clone(),
		Page:     r.cfg.CurrentPage,
		Timers:   r.live.Timers(),
		Counters: r.live.Counters(),
		Labels:   r.live.Labels(),
	}
}

// Handle applies one inbound message. s is used for replies the message
// triggers, such as counter commands.
func (r *Router) Handle(ctx context.Context, msg deckproto.Message, s Sender) {
	r.mu.Lock()
	defer r.unlockAndFlush()

	switch m := msg.(type) {
	case deckproto.ButtonPress:
		btn := r.cfg.Button(m.Page, m.Button)
		if m.HasBit() && btn.IsToggle() && btn.ToggleState == (*m.Bit == 1) {
			btn.ToggleState = *m.Bit != 1
		}
		if err := r.pressLocked(ctx, m.Page, m.Button, s); err != nil {
			r.log.Debugw("press ignored", "page", m.Page, "button", m.Button, "error", err)
		}

	case deckproto.TimerDone:
		k := Key{m.Page, m.Button}
		r.live.ClearTimer(k)
		label := r.cfg.Button(m.Page, m.Button).DisplayLabel(m.Button)
		sound := r.cfg.NotificationSound
		r.later(func() {
			r.notifier.Notify("Timer Finished", fmt.Sprintf("Your timer %q is complete.", label))
			r.playSound(ctx, sound)
		})
		if r.shown(m.Page) {
			r.event(ButtonChanged{k})
		}

	case deckproto.TimerUpdate:
		k := Key{m.Page, m.Button}
		if m.State == deckproto.TimerRunning {
			target, _ := r.live.StartTimer(k, m.Remaining)
			if r.shown(m.Page) {
				r.event(TimerStarted{Key: k, Target: target})
			}
			break
		}
		r.live.ClearTimer(k)
		text := deckproto.FormatClock(m.Remaining)
		r.live.SetLabel(k, text)
		if r.shown(m.Page) {
			r.event(LabelChanged{Key: k, Text: text})
		}

	case deckproto.CounterUpdate:
		k := Key{m.Page, m.Button}
		r.live.SetCounter(k, m.Value)
		if r.shown(m.Page) {
			r.event(LabelChanged{Key: k, Text: strconv.Itoa(m.Value)})
		}

	case deckproto.SyncPage:
		if r.cfg.HasPage(m.Page) && m.Page != r.cfg.CurrentPage {
			r.switchPageLocked(m.Page)
		}

	case deckproto.SyncState:
		page := r.cfg.CurrentPage
		btn := r.cfg.Button(page, m.Button)
		on := m.Bit == 1
		if btn.IsToggle() && btn.ToggleState != on {
			btn.ToggleState = on
			r.saveLocked()
			r.event(ButtonChanged{Key{page, m.Button}})
		}

	case deckproto.Pong:
		r.log.Debugw("handshake reply outside session", "name", m.Name)

	case deckproto.Reply:
		r.log.Debugw("upload reply outside upload", "reply", m.Keyword)

	case deckproto.Unknown:
		r.log.Infow("unknown message", "line", m.Line)

	default:
		r.log.Warnw("unhandled message", "type", fmt.Sprintf("%T", msg))
	}
}

// Press runs a button's action, whether pressed on the device or locally.
func (r *Router) Press(ctx context.Context, page, button int, s Sender) error {
	r.mu.Lock()
	defer r.unlockAndFlush()
	return r.pressLocked(ctx, page, button, s)
}

func (r *Router) pressLocked(ctx context.Context, page, idx int, s Sender) error {
	btn := r.cfg.Button(page, idx)
	if btn == nil {
		return fmt.Errorf("%w at page %d index %d", ErrNoButton, page, idx)
	}
	k := Key{page, idx}

	switch btn.Type {
	case store.TypeToggle:
		r.execute(ctx, ActionRequest{Page: page, Button: idx, Config: *btn})
		btn.ToggleState = !btn.ToggleState
		r.saveLocked()
		r.event(ButtonChanged{k})

	case store.TypeGoto:
		if r.cfg.HasPage(btn.GotoPage) && btn.GotoPage != r.cfg.CurrentPage {
			r.switchPageLocked(btn.GotoPage)
		}

	case store.TypeCounter:
		line := deckproto.Counter(page, idx, btn.CounterStartValue, btn.CounterAction)
		r.later(func() {
			var err error = ErrNotConnected
			if s != nil {
				err = s.Send(line)
			}
			switch {
			case errors.Is(err, ErrNotConnected):
				r.notifier.Alert("Device not connected", "Device not connected. Cannot send counter command.")
			case err != nil:
				r.log.Warnw("counter command failed", "error", err)
			}
		})

	case store.TypeTimer:
		// the deck runs timers and reports them back

	default:
		r.execute(ctx, ActionRequest{Page: page, Button: idx, Config: *btn})
	}
	return nil
}

func (r *Router) execute(ctx context.Context, req ActionRequest) {
	if r.executor == nil {
		return
	}
	r.later(func() {
		if err := r.executor.Execute(ctx, req); err != nil {
			r.log.Warnw("action failed", "page", req.Page, "button", req.Button, "type", req.Config.Type, "error", err)
		}
	})
}

func (r *Router) playSound(ctx context.Context, path string) {
	if r.sounds == nil || path == "" {
		return
	}
	if err := r.sounds.Play(ctx, path, notificationVolume); err != nil {
		r.log.Warnw("notification sound failed", "path", path, "error", err)
	}
}

func (r *Router) switchPageLocked(page int) {
	r.cfg.CurrentPage = page
	r.saveLocked()
	r.event(PageChanged{Page: page})
}

func (r *Router) shown(page int) bool {
	return r.cfg.CurrentPage == page
}

func (r *Router) saveLocked() {
	if r.saver == nil {
		return
	}
	if err := r.saver.SaveConfig(r.cfg); err != nil {
		r.log.Warnw("save config failed", "error", err)
	}
}

func (r *Router) event(ev Event) {
	r.later(func() { r.notifier.Event(ev) })
}

func (r *Router) later(fn func()) {
	r.effects = append(r.effects, fn)
}

// unlockAndFlush releases mu and runs queued effects in order.
func (r *Router) unlockAndFlush() {
	effects := r.effects
	r.effects = nil
	r.mu.Unlock()
	for _, fn := range effects {
		fn()
	}
}
