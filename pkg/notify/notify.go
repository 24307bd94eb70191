// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package notify shows desktop notifications through the freedesktop
// notification service on the session bus.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	destination = "org.freedesktop.Notifications"
	objectPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	method      = destination + ".Notify"

	// AppName is reported to the notification server.
	AppName = "deckhand"
)

// Urgency levels of the freedesktop hint.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// Desktop sends notifications. The bus connection is made on first use
// and shared afterwards.
type Desktop struct {
	mu      sync.Mutex
	obj     dbus.BusObject
	connect func() (dbus.BusObject, error)

	// Icon is a themed icon name or an absolute path.
	Icon string
	// Timeout is the display time in milliseconds; -1 lets the server decide.
	Timeout int32
}

// NewDesktop returns a Desktop using the session bus.
func NewDesktop() *Desktop {
	return &Desktop{
		connect: sessionObject,
		Icon:    "input-keyboard",
		Timeout: -1,
	}
}

func sessionObject() (dbus.BusObject, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return conn.Object(destination, objectPath), nil
}

func (d *Desktop) object() (dbus.BusObject, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.obj != nil {
		return d.obj, nil
	}
	obj, err := d.connect()
	if err != nil {
		return nil, err
	}
	d.obj = obj
	return obj, nil
}

// Notify shows a normal urgency notification and returns its server id.
func (d *Desktop) Notify(ctx context.Context, title, body string) (uint32, error) {
	return d.Send(ctx, title, body, UrgencyNormal)
}

// Send shows a notification with the given urgency.
func (d *Desktop) Send(ctx context.Context, title, body string, urgency byte) (uint32, error) {
	obj, err := d.object()
	if err != nil {
		return 0, err
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency),
	}
	call := obj.CallWithContext(ctx, method, 0,
		AppName, uint32(0), d.Icon, title, body, []string{}, hints, d.Timeout)

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}
	return id, nil
}
