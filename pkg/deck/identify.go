// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/deckhand/pkg/deckproto"
)

// deckNames are the accepted self-reported device names, lowercase.
var deckNames = []string{"smartdeck", "smart deck"}

// IsDeckName reports whether a PONG_DECK name belongs to a macro deck.
func IsDeckName(name string) bool {
	lower := strings.ToLower(name)
	for _, n := range deckNames {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// Identifier probes a single port with the handshake.
type Identifier struct {
	baud    int
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewIdentifier creates an identifier. A zero timeout selects the
// protocol default.
func NewIdentifier(baud int, timeout time.Duration, log *zap.SugaredLogger) *Identifier {
	if baud <= 0 {
		baud = deckproto.BaudRate
	}
	if timeout <= 0 {
		timeout = deckproto.HandshakeTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Identifier{baud: baud, timeout: timeout, log: log}
}

// Identify sends PING_DECK and waits for a PONG_DECK reply. It returns the
// reported name and true, or "" and false for any failure. The port is
// always left closed and unlocked.
func (id *Identifier) Identify(ctx context.Context, p *Port) (string, bool) {
	ForceFree(p)
	if err := p.Open(id.baud); err != nil {
		id.log.Debugw("open failed", "port", p.Name(), "error", err)
		return "", false
	}
	defer ForceFree(p)

	r, err := p.AcquireReader()
	if err != nil {
		id.log.Debugw("acquire reader failed", "port", p.Name(), "error", err)
		return "", false
	}

	if err := p.WriteString(deckproto.Ping()); err != nil {
		id.log.Debugw("ping failed", "port", p.Name(), "error", err)
		return "", false
	}

	// The reader blocks on lines until done closes, then ForceFree
	// cancels its pending read.
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		splitter := deckproto.NewLineSplitter(0)
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				got, _ := splitter.Feed(buf[:n])
				for _, line := range got {
					select {
					case lines <- line:
					case <-done:
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(id.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", false
		case <-timer.C:
			id.log.Debugw("no handshake reply", "port", p.Name())
			return "", false
		case line, ok := <-lines:
			if !ok {
				return "", false
			}
			msg, err := deckproto.ParseLine(line)
			if err != nil {
				continue
			}
			if pong, ok := msg.(deckproto.Pong); ok {
				id.log.Debugw("handshake reply", "port", p.Name(), "name", pong.Name)
				return pong.Name, true
			}
		}
	}
}
