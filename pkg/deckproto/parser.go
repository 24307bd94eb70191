// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deckproto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownMessage is returned for lines with an unrecognized prefix.
var ErrUnknownMessage = errors.New("unknown message")

// ParseError describes a line with a known prefix but invalid fields.
type ParseError struct {
	Prefix string
	Field  string
	Value  string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed %s: missing %s", e.Prefix, e.Field)
	}
	return fmt.Sprintf("malformed %s: invalid %s %q", e.Prefix, e.Field, e.Value)
}

// ParseLine decodes a single trimmed line from the device.
//
// Unrecognized lines return an Unknown message together with
// ErrUnknownMessage so callers can log them and carry on.
func ParseLine(line string) (Message, error) {
	line = strings.TrimSpace(line)

	if name, ok := strings.CutPrefix(line, PrefixPong+":"); ok {
		return Pong{Name: name}, nil
	}

	switch line {
	case ReplyReady, ReplyOKFile, ReplyOKData, ReplyDoneReboot, ReplySetupDone:
		return Reply{Keyword: line}, nil
	}

	prefix, rest, found := strings.Cut(line, ":")
	if !found {
		return Unknown{Line: line}, ErrUnknownMessage
	}
	fields := strings.Split(rest, ":")

	switch prefix {
	case PrefixButton:
		return parseButton(fields)
	case PrefixTimerDone:
		ints, err := parseInts(prefix, fields, "page", "button")
		if err != nil {
			return nil, err
		}
		return TimerDone{Page: ints[0], Button: ints[1]}, nil
	case PrefixTimerUpdate:
		return parseTimerUpdate(fields)
	case PrefixCounterUpdate:
		return parseCounterUpdate(fields)
	case PrefixSyncPage:
		ints, err := parseInts(prefix, fields, "page")
		if err != nil {
			return nil, err
		}
		return SyncPage{Page: ints[0]}, nil
	case PrefixSyncState:
		ints, err := parseInts(prefix, fields, "button", "bit")
		if err != nil {
			return nil, err
		}
		if err := checkBit(prefix, fields[1], ints[1]); err != nil {
			return nil, err
		}
		return SyncState{Button: ints[0], Bit: ints[1]}, nil
	}

	return Unknown{Line: line}, ErrUnknownMessage
}

func parseButton(fields []string) (Message, error) {
	switch len(fields) {
	case 2:
		ints, err := parseInts(PrefixButton, fields, "page", "button")
		if err != nil {
			return nil, err
		}
		return ButtonPress{Page: ints[0], Button: ints[1]}, nil
	case 3:
		ints, err := parseInts(PrefixButton, fields, "page", "button", "bit")
		if err != nil {
			return nil, err
		}
		if err := checkBit(PrefixButton, fields[2], ints[2]); err != nil {
			return nil, err
		}
		bit := ints[2]
		return ButtonPress{Page: ints[0], Button: ints[1], Bit: &bit}, nil
	default:
		return nil, &ParseError{Prefix: PrefixButton, Field: "field count", Value: strconv.Itoa(len(fields))}
	}
}

func parseTimerUpdate(fields []string) (Message, error) {
	ints, err := parseInts(PrefixTimerUpdate, fields, "page", "button", "state", "remaining")
	if err != nil {
		return nil, err
	}
	state := TimerState(ints[2])
	if state != TimerPaused && state != TimerRunning && state != TimerReset {
		return nil, &ParseError{Prefix: PrefixTimerUpdate, Field: "state", Value: fields[2]}
	}
	return TimerUpdate{Page: ints[0], Button: ints[1], State: state, Remaining: ints[3]}, nil
}

func parseCounterUpdate(fields []string) (Message, error) {
	if len(fields) != 3 {
		return nil, &ParseError{Prefix: PrefixCounterUpdate, Field: "field count", Value: strconv.Itoa(len(fields))}
	}
	ints, err := parseInts(PrefixCounterUpdate, fields[:2], "page", "button")
	if err != nil {
		return nil, err
	}
	// Counter values may go negative.
	value, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return nil, &ParseError{Prefix: PrefixCounterUpdate, Field: "value", Value: fields[2]}
	}
	return CounterUpdate{Page: ints[0], Button: ints[1], Value: value}, nil
}

// parseInts parses exactly len(names) non-negative integer fields.
func parseInts(prefix string, fields []string, names ...string) ([]int, error) {
	if len(fields) != len(names) {
		return nil, &ParseError{Prefix: prefix, Field: "field count", Value: strconv.Itoa(len(fields))}
	}
	out := make([]int, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, &ParseError{Prefix: prefix, Field: names[i]}
		}
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			return nil, &ParseError{Prefix: prefix, Field: names[i], Value: f}
		}
		out[i] = v
	}
	return out, nil
}

func checkBit(prefix, raw string, v int) error {
	if v != 0 && v != 1 {
		return &ParseError{Prefix: prefix, Field: "bit", Value: raw}
	}
	return nil
}
