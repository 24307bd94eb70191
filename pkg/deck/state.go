// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import "fmt"

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateIdentifying        // a discovery pass is probing ports
	StateConnecting         // port open, waiting for PONG_DECK
	StateConnected          // handshake done, live sync running
	StateUploading          // the upload engine owns the wire
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdentifying:
		return "identifying"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateUploading:
		return "uploading"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// transitions lists the legal next states of each state.
var transitions = map[State][]State{
	StateDisconnected: {StateIdentifying, StateConnecting, StateUploading},
	StateIdentifying:  {StateDisconnected, StateConnecting},
	StateConnecting:   {StateConnected, StateDisconnected, StateUploading},
	StateConnected:    {StateDisconnected, StateUploading},
	StateUploading:    {StateDisconnected},
}

// ErrInvalidTransition reports a state change the lifecycle forbids.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether from -> to is legal. Staying in the same
// state is always legal.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
