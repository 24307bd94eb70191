// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

// eventMessage is the JSON form of everything the engine reports
type eventMessage struct {
	Type   string    `json:"type"`
	At     time.Time `json:"at"`
	State  string    `json:"state,omitempty"`
	Port   string    `json:"port,omitempty"`
	Device string    `json:"device,omitempty"`
	Page   *int      `json:"page,omitempty"`
	Button *int      `json:"button,omitempty"`
	Text   string    `json:"text,omitempty"`
	Target *int64    `json:"target,omitempty"`
	File   string    `json:"file,omitempty"`
	Index  int       `json:"index,omitempty"`
	Total  int       `json:"total,omitempty"`
	Bytes  int       `json:"bytes,omitempty"`
}

func eventFor(ev deck.Event, now time.Time) eventMessage {
	key := func(k deck.Key) (*int, *int) {
		page, button := k.Page, k.Button
		return &page, &button
	}

	m := eventMessage{At: now}
	switch ev := ev.(type) {
	case deck.SessionChanged:
		m.Type = "session"
		m.State = ev.State.String()
		m.Port = ev.Port
		m.Device = ev.Device
	case deck.PageChanged:
		page := ev.Page
		m.Type = "page"
		m.Page = &page
	case deck.ButtonChanged:
		m.Type = "button"
		m.Page, m.Button = key(ev.Key)
	case deck.LabelChanged:
		m.Type = "label"
		m.Page, m.Button = key(ev.Key)
		m.Text = ev.Text
	case deck.TimerStarted:
		target := ev.Target.UnixMilli()
		m.Type = "timer"
		m.Page, m.Button = key(ev.Key)
		m.Target = &target
	default:
		m.Type = fmt.Sprintf("%T", ev)
	}
	return m
}

// eventHub fans engine notifications out to WebSocket subscribers. It is
// the Notifier of the serve command. Uploads started over HTTP always
// carry their choice, so Confirm declines.
type eventHub struct {
	deck.NopNotifier

	mu   sync.Mutex
	subs map[string]chan []byte
	now  func() time.Time
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]chan []byte), now: time.Now}
}

func (h *eventHub) subscribe() (string, <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan []byte, 64)
	h.subs[id] = ch
	return id, ch
}

func (h *eventHub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *eventHub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *eventHub) broadcast(m eventMessage) {
	data, err := json.Marshal(m)
	if err != nil {
		logger.Warnw("encode event failed", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- data:
		default:
			logger.Debugw("subscriber lagging, event dropped", "subscriber", id, "type", m.Type)
		}
	}
}

func (h *eventHub) Status(text string) {
	logger.Infow("status", "text", text)
	h.broadcast(eventMessage{Type: "status", At: h.now(), Text: text})
}

func (h *eventHub) Progress(p deck.Progress) {
	h.broadcast(eventMessage{Type: "progress", At: h.now(), File: p.File, Index: p.Index, Total: p.Total, Bytes: p.Bytes})
}

func (h *eventHub) Event(ev deck.Event) {
	h.broadcast(eventFor(ev, h.now()))
}

func (h *eventHub) Alert(title, detail string) {
	logger.Errorw(title, "detail", detail)
	h.broadcast(eventMessage{Type: "alert", At: h.now(), Text: title + ": " + detail})
}

func (h *eventHub) Notify(title, body string) {
	h.broadcast(eventMessage{Type: "notify", At: h.now(), Text: title + ": " + body})
}

func (h *eventHub) Confirm(ctx context.Context, plan deck.Plan) (deck.UploadChoice, error) {
	return deck.UploadCancel, nil
}

// serveEvents streams the hub to one WebSocket client until it goes away
func (h *eventHub) serveEvents(conn *websocket.Conn) {
	id, ch := h.subscribe()
	defer h.unsubscribe(id)
	defer conn.Close()
	logger.Debugw("subscriber connected", "subscriber", id, "remote", conn.RemoteAddr().String())

	// Reads only detect the close; clients never send anything meaningful
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			logger.Debugw("subscriber gone", "subscriber", id)
			return
		case data := <-ch:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
