// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"time"

	"github.com/Thermoquad/deckhand/pkg/deckproto"
)

// Timings holds every delay and timeout of the session engine.
type Timings struct {
	HandshakeTimeout time.Duration // wait for PONG_DECK while identifying
	SyncDelay        time.Duration // PONG_DECK -> GET_SYNC
	PassiveInterval  time.Duration // passive discovery cadence
	SearchRounds     int           // bounded search rounds
	SearchDelay      time.Duration // between bounded search rounds
	SettleDelay      time.Duration // upload teardown -> rescan
	ReplyTimeout     time.Duration // any single upload reply
	SetupSoftTimeout time.Duration // SETUP_DONE warning
	SetupHardTimeout time.Duration // SETUP_DONE give up, treated as success
	ListenerExit     time.Duration // wait for a cancelled listener to return
	HotplugSettle    time.Duration // device node event -> discovery pass
}

// DefaultTimings returns the production timings.
func DefaultTimings() Timings {
	return Timings{
		HandshakeTimeout: deckproto.HandshakeTimeout,
		SyncDelay:        deckproto.SyncDelay,
		PassiveInterval:  10 * time.Second,
		SearchRounds:     30,
		SearchDelay:      time.Second,
		SettleDelay:      2 * time.Second,
		ReplyTimeout:     10 * time.Second,
		SetupSoftTimeout: 15 * time.Second,
		SetupHardTimeout: 60 * time.Second,
		ListenerExit:     time.Second,
		HotplugSettle:    time.Second,
	}
}
