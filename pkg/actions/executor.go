// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package actions performs button actions on the host: key combos, text
// macros, commands, applications, websites, media keys and sounds.
package actions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/shlex"
	"github.com/pkg/browser"
	"go.uber.org/zap"

	"github.com/Thermoquad/deckhand/pkg/deck"
	"github.com/Thermoquad/deckhand/pkg/store"
)

// ErrUnsupported is returned for actions the host cannot perform.
var ErrUnsupported = errors.New("action not supported")

// Clipboard holds text for pasting.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// media actions chosen in the editor, mapped to combo names
var mediaActions = map[string]string{
	"play_pause": "AUDIO_PLAY",
	"next_track": "AUDIO_NEXT",
	"prev_track": "AUDIO_PREV",
	"vol_up":     "AUDIO_VOL_UP",
	"vol_down":   "AUDIO_VOL_DOWN",
	"mute":       "AUDIO_MUTE",
	"stop":       "AUDIO_STOP",
}

// Executor performs deck button actions. The zero value is not usable;
// create one with New.
type Executor struct {
	Keyboard  Keyboard
	Clipboard Clipboard
	Sounds    deck.SoundPlayer

	// Start launches a process without waiting for it.
	Start func(name string, args ...string) error
	// Open hands a URL or file to the desktop's default handler.
	Open func(target string) error

	// pause between synthesized steps
	TypeDelay time.Duration

	log *zap.SugaredLogger
}

// New creates an Executor using the system keyboard, clipboard and
// desktop opener.
func New(log *zap.SugaredLogger) *Executor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{
		Keyboard:  &SystemKeyboard{},
		Clipboard: systemClipboard{},
		Sounds:    NewPlayer(log),
		Start:     startDetached,
		Open:      openTarget,
		TypeDelay: 5 * time.Millisecond,
		log:       log,
	}
}

// Execute performs the action of req's button.
func (e *Executor) Execute(ctx context.Context, req deck.ActionRequest) error {
	b := req.Config
	e.log.Debugw("executing action", "page", req.Page, "button", req.Button, "type", b.Type)

	switch b.Type {
	case store.TypeKey:
		return e.pressCombo(b.Combo)
	case store.TypeText:
		return e.typeText(ctx, b.TextMacro, b.TextSimulate)
	case store.TypeScript:
		return e.runCommand(b.CustomScript)
	case store.TypeApp:
		return e.launchApp(b.AppPath)
	case store.TypeWebsite:
		if strings.TrimSpace(b.WebsiteURL) == "" {
			return nil
		}
		return e.Open(NormalizeURL(b.WebsiteURL))
	case store.TypeMedia:
		combo, ok := mediaActions[b.MediaAction]
		if !ok {
			return fmt.Errorf("unknown media action %q", b.MediaAction)
		}
		return e.pressCombo(combo)
	case store.TypeSound:
		if b.SoundPath == "" {
			return nil
		}
		volume := 100
		if b.SoundVolume != nil {
			volume = *b.SoundVolume
		}
		return e.Sounds.Play(ctx, b.SoundPath, volume)
	case store.TypeToggle:
		return e.toggle(b)
	case store.TypeMouse:
		return fmt.Errorf("mouse %w", ErrUnsupported)
	case "":
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, b.Type)
}

// toggle runs the combo for the transition being made. OffCombo switches
// the button on and OnCombo switches it off.
func (e *Executor) toggle(b store.Button) error {
	if b.ToggleData == nil {
		return nil
	}
	cmd := b.ToggleData.OffCombo
	if b.ToggleState {
		cmd = b.ToggleData.OnCombo
	}
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil
	}
	if IsCommandLine(cmd) {
		return e.runCommand(cmd)
	}
	return e.pressCombo(cmd)
}

// IsCommandLine reports whether a toggle combo is a command to run rather
// than keys to press.
func IsCommandLine(s string) bool {
	lower := strings.ToLower(s)
	if strings.Contains(lower, ".exe") || strings.Contains(lower, ".sh") {
		return true
	}
	return strings.Contains(s, " ") && !strings.Contains(s, "+")
}

func (e *Executor) pressCombo(combo string) error {
	if strings.TrimSpace(combo) == "" {
		return nil
	}
	c, err := ParseCombo(combo)
	if err != nil {
		return err
	}
	return e.Keyboard.Press(c)
}

// paste is the platform's paste chord.
func paste() Chord {
	c := Chord{Keys: []int{keyCodes["V"]}}
	if runtime.GOOS == "darwin" {
		c.Super = true
	} else {
		c.Ctrl = true
	}
	return c
}

// typeText pastes text line by line with enter between lines. Simulated
// typing pastes one character at a time. The previous clipboard content is
// restored afterwards.
func (e *Executor) typeText(ctx context.Context, text string, simulate bool) error {
	if text == "" {
		return nil
	}
	old, err := e.Clipboard.ReadAll()
	if err != nil {
		e.log.Debugw("read clipboard failed", "error", err)
	}
	defer func() {
		if err := e.Clipboard.WriteAll(old); err != nil {
			e.log.Debugw("restore clipboard failed", "error", err)
		}
	}()

	enter := Chord{Keys: []int{keyCodes["ENTER"]}}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		chunks := []string{line}
		if simulate {
			chunks = strings.Split(line, "")
		}
		for _, chunk := range chunks {
			if chunk == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.Clipboard.WriteAll(chunk); err != nil {
				return fmt.Errorf("write clipboard: %w", err)
			}
			if err := e.Keyboard.Press(paste()); err != nil {
				return err
			}
			time.Sleep(e.TypeDelay)
		}
		if i < len(lines)-1 {
			if err := e.Keyboard.Press(enter); err != nil {
				return err
			}
			time.Sleep(e.TypeDelay)
		}
	}
	return nil
}

// runCommand splits a command line with shell quoting rules and starts it.
func (e *Executor) runCommand(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil
	}
	return e.Start(args[0], args[1:]...)
}

// launchApp starts an executable directly and opens anything else with the
// default handler.
func (e *Executor) launchApp(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
		return e.Start(path)
	}
	if _, err := os.Stat(path); err == nil {
		return e.Open(path)
	}
	return e.runCommand(path)
}

// NormalizeURL adds http:// to a URL without a scheme.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "http://" + u
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go cmd.Wait()
	return nil
}

func openTarget(target string) error {
	if strings.Contains(target, "://") {
		return browser.OpenURL(target)
	}
	return browser.OpenFile(target)
}
