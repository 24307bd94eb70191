// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"errors"
	"io"

	"github.com/Thermoquad/deckhand/pkg/deckproto"
)

const listenBufferSize = 1024

// listen is the line listener of one connection. Lines are dispatched in
// arrival order on this goroutine.
func (s *Session) listen(ctx context.Context, epoch uint64, r *Reader, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.listenerDone == done || s.listenerDone == nil {
			s.listening = false
		}
		s.mu.Unlock()
		close(done)
	}()

	splitter := deckproto.NewLineSplitter(0)
	buf := make([]byte, listenBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			lines, ferr := splitter.Feed(buf[:n])
			if ferr != nil {
				s.log.Warnw("dropped inbound line", "error", ferr)
				if s.observer != nil {
					s.observer("", nil, ferr)
				}
			}
			for _, line := range lines {
				if !s.current(epoch) {
					return
				}
				s.dispatch(ctx, epoch, line)
			}
		}

		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, ErrReaderCancelled), errors.Is(err, ErrReaderReleased):
			s.log.Debug("listener cancelled")
		case errors.Is(err, io.EOF):
			s.log.Info("device closed the stream")
		default:
			s.log.Warnw("read failed", "error", err)
			s.teardown(epoch, false)
		}
		return
	}
}

func (s *Session) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

// dispatch decodes one line and routes it.
func (s *Session) dispatch(ctx context.Context, epoch uint64, line string) {
	msg, err := deckproto.ParseLine(line)
	if s.observer != nil {
		s.observer(line, msg, err)
	}
	if err != nil && !errors.Is(err, deckproto.ErrUnknownMessage) {
		s.log.Debugw("malformed line", "line", line, "error", err)
		return
	}

	if pong, ok := msg.(deckproto.Pong); ok {
		s.handshake(epoch, pong.Name)
		return
	}
	if s.router != nil {
		s.router.Handle(ctx, msg, s)
	}
}
