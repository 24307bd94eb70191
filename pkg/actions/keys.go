// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package actions

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// Chord is a set of keys pressed together with modifiers.
type Chord struct {
	Keys  []int
	Ctrl  bool
	Alt   bool
	Shift bool
	Super bool
}

// Keyboard synthesizes key presses.
type Keyboard interface {
	Press(c Chord) error
}

// modifier names accepted in combos
var modifiers = map[string]func(*Chord){
	"CTRL":    func(c *Chord) { c.Ctrl = true },
	"CONTROL": func(c *Chord) { c.Ctrl = true },
	"ALT":     func(c *Chord) { c.Alt = true },
	"OPTION":  func(c *Chord) { c.Alt = true },
	"SHIFT":   func(c *Chord) { c.Shift = true },
	"WIN":     func(c *Chord) { c.Super = true },
	"GUI":     func(c *Chord) { c.Super = true },
	"CMD":     func(c *Chord) { c.Super = true },
	"SUPER":   func(c *Chord) { c.Super = true },
}

// key aliases normalized before lookup
var aliases = map[string]string{
	"ESCAPE":     "ESC",
	"RETURN":     "ENTER",
	"DEL":        "DELETE",
	"INS":        "INSERT",
	"PGUP":       "PAGEUP",
	"PGDN":       "PAGEDOWN",
	"ARROWUP":    "UP",
	"ARROWDOWN":  "DOWN",
	"ARROWLEFT":  "LEFT",
	"ARROWRIGHT": "RIGHT",
	",":          "COMMA",
	".":          "DOT",
	"/":          "SLASH",
	";":          "SEMICOLON",
	"'":          "APOSTROPHE",
	"\\":         "BACKSLASH",
	"`":          "GRAVE",
	"-":          "MINUS",
	"=":          "EQUAL",
	"[":          "LEFTBRACE",
	"]":          "RIGHTBRACE",
}

// ParseCombo turns a combo such as "CTRL+ALT+K" or "AUDIO_PLAY" into a
// chord. Every part but the last must be a modifier.
func ParseCombo(combo string) (Chord, error) {
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return Chord{}, fmt.Errorf("empty key combo")
	}

	if code, ok := mediaKeys[strings.ToUpper(combo)]; ok {
		return Chord{Keys: []int{code}}, nil
	}

	parts := strings.Split(combo, "+")
	var c Chord
	for _, p := range parts[:len(parts)-1] {
		set, ok := modifiers[strings.ToUpper(strings.TrimSpace(p))]
		if !ok {
			return Chord{}, fmt.Errorf("unknown modifier %q in %q", p, combo)
		}
		set(&c)
	}

	name := strings.ToUpper(strings.TrimSpace(parts[len(parts)-1]))
	if name == "" {
		return Chord{}, fmt.Errorf("missing key in %q", combo)
	}
	if a, ok := aliases[name]; ok {
		name = a
	}
	code, ok := keyCodes[name]
	if !ok {
		return Chord{}, fmt.Errorf("unknown key %q in %q", name, combo)
	}
	c.Keys = []int{code}
	return c, nil
}

// SystemKeyboard presses keys through keybd_event. The underlying device
// is created on first use.
type SystemKeyboard struct {
	mu sync.Mutex
	kb *keybd_event.KeyBonding
}

func (k *SystemKeyboard) Press(c Chord) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.kb == nil {
		kb, err := keybd_event.NewKeyBonding()
		if err != nil {
			return fmt.Errorf("create keyboard: %w", err)
		}
		// the virtual device is not usable until the OS has registered it
		time.Sleep(keyboardWarmup)
		k.kb = &kb
	}

	k.kb.SetKeys(c.Keys...)
	k.kb.HasCTRL(c.Ctrl)
	k.kb.HasALT(c.Alt)
	k.kb.HasSHIFT(c.Shift)
	k.kb.HasSuper(c.Super)
	if err := k.kb.Launching(); err != nil {
		return fmt.Errorf("press keys: %w", err)
	}
	return nil
}
