// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package actions

import (
	"time"

	"github.com/micmonay/keybd_event"
)

// uinput needs a moment before the new device accepts events
const keyboardWarmup = 2 * time.Second

var keyCodes = map[string]int{
	"A": keybd_event.VK_A, "B": keybd_event.VK_B, "C": keybd_event.VK_C,
	"D": keybd_event.VK_D, "E": keybd_event.VK_E, "F": keybd_event.VK_F,
	"G": keybd_event.VK_G, "H": keybd_event.VK_H, "I": keybd_event.VK_I,
	"J": keybd_event.VK_J, "K": keybd_event.VK_K, "L": keybd_event.VK_L,
	"M": keybd_event.VK_M, "N": keybd_event.VK_N, "O": keybd_event.VK_O,
	"P": keybd_event.VK_P, "Q": keybd_event.VK_Q, "R": keybd_event.VK_R,
	"S": keybd_event.VK_S, "T": keybd_event.VK_T, "U": keybd_event.VK_U,
	"V": keybd_event.VK_V, "W": keybd_event.VK_W, "X": keybd_event.VK_X,
	"Y": keybd_event.VK_Y, "Z": keybd_event.VK_Z,

	"0": keybd_event.VK_0, "1": keybd_event.VK_1, "2": keybd_event.VK_2,
	"3": keybd_event.VK_3, "4": keybd_event.VK_4, "5": keybd_event.VK_5,
	"6": keybd_event.VK_6, "7": keybd_event.VK_7, "8": keybd_event.VK_8,
	"9": keybd_event.VK_9,

	"F1": keybd_event.VK_F1, "F2": keybd_event.VK_F2, "F3": keybd_event.VK_F3,
	"F4": keybd_event.VK_F4, "F5": keybd_event.VK_F5, "F6": keybd_event.VK_F6,
	"F7": keybd_event.VK_F7, "F8": keybd_event.VK_F8, "F9": keybd_event.VK_F9,
	"F10": keybd_event.VK_F10, "F11": keybd_event.VK_F11, "F12": keybd_event.VK_F12,

	"ENTER":     keybd_event.VK_ENTER,
	"SPACE":     keybd_event.VK_SPACE,
	"TAB":       keybd_event.VK_TAB,
	"ESC":       keybd_event.VK_ESC,
	"BACKSPACE": keybd_event.VK_BACKSPACE,
	"DELETE":    keybd_event.VK_DELETE,
	"INSERT":    keybd_event.VK_INSERT,
	"HOME":      keybd_event.VK_HOME,
	"END":       keybd_event.VK_END,
	"PAGEUP":    keybd_event.VK_PAGEUP,
	"PAGEDOWN":  keybd_event.VK_PAGEDOWN,
	"UP":        keybd_event.VK_UP,
	"DOWN":      keybd_event.VK_DOWN,
	"LEFT":      keybd_event.VK_LEFT,
	"RIGHT":     keybd_event.VK_RIGHT,

	"COMMA":      keybd_event.VK_COMMA,
	"DOT":        keybd_event.VK_DOT,
	"SLASH":      keybd_event.VK_SLASH,
	"SEMICOLON":  keybd_event.VK_SEMICOLON,
	"APOSTROPHE": keybd_event.VK_APOSTROPHE,
	"BACKSLASH":  keybd_event.VK_BACKSLASH,
	"GRAVE":      keybd_event.VK_GRAVE,
	"MINUS":      keybd_event.VK_MINUS,
	"EQUAL":      keybd_event.VK_EQUAL,
	"LEFTBRACE":  keybd_event.VK_LEFTBRACE,
	"RIGHTBRACE": keybd_event.VK_RIGHTBRACE,
}

// evdev codes from linux/input-event-codes.h
const (
	keyMute         = 113
	keyVolumeDown   = 114
	keyVolumeUp     = 115
	keyNextSong     = 163
	keyPlayPause    = 164
	keyPreviousSong = 165
	keyStopCD       = 166
)

var mediaKeys = map[string]int{
	"AUDIO_MUTE":     keyMute,
	"AUDIO_VOL_DOWN": keyVolumeDown,
	"AUDIO_VOL_UP":   keyVolumeUp,
	"AUDIO_NEXT":     keyNextSong,
	"AUDIO_PLAY":     keyPlayPause,
	"AUDIO_PREV":     keyPreviousSong,
	"AUDIO_STOP":     keyStopCD,
}
