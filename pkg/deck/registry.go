// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.bug.st/serial/enumerator"
)

// ErrPortCancelled is returned when a port request names no port.
var ErrPortCancelled = errors.New("port request cancelled")

// Registry enumerates candidate ports.
type Registry interface {
	// List returns the ports discovery may probe.
	List(ctx context.Context) ([]*Port, error)

	// Request grants access to a port by name.
	Request(ctx context.Context, name string) (*Port, error)
}

// SerialRegistry lists USB serial ports plus any port granted by Request.
// The same *Port is returned for a name across calls.
type SerialRegistry struct {
	driver Driver
	list   func() ([]*enumerator.PortDetails, error)

	mu      sync.Mutex
	ports   map[string]*Port
	granted map[string]bool
}

// NewSerialRegistry creates a registry backed by the OS port enumerator.
func NewSerialRegistry(driver Driver) *SerialRegistry {
	return &SerialRegistry{
		driver:  driver,
		list:    enumerator.GetDetailedPortsList,
		ports:   make(map[string]*Port),
		granted: make(map[string]bool),
	}
}

// List returns USB ports and granted ports that are currently present.
func (r *SerialRegistry) List(ctx context.Context) ([]*Port, error) {
	details, err := r.list()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Port
	for _, d := range details {
		if !d.IsUSB && !r.granted[d.Name] {
			continue
		}
		out = append(out, r.portLocked(infoFromDetails(d)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Request grants the named port. The port need not be USB or present yet.
func (r *SerialRegistry) Request(ctx context.Context, name string) (*Port, error) {
	if name == "" {
		return nil, ErrPortCancelled
	}

	info := PortInfo{Name: name}
	if details, err := r.list(); err == nil {
		for _, d := range details {
			if d.Name == name {
				info = infoFromDetails(d)
				break
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.granted[name] = true
	return r.portLocked(info), nil
}

func (r *SerialRegistry) portLocked(info PortInfo) *Port {
	if p, ok := r.ports[info.Name]; ok {
		p.setInfo(info)
		return p
	}
	p := NewPort(info, r.driver)
	r.ports[info.Name] = p
	return p
}

func infoFromDetails(d *enumerator.PortDetails) PortInfo {
	return PortInfo{
		Name:    d.Name,
		IsUSB:   d.IsUSB,
		VID:     d.VID,
		PID:     d.PID,
		Serial:  d.SerialNumber,
		Product: d.Product,
	}
}

// StaticRegistry serves a fixed set of ports, such as a WebSocket bridge.
type StaticRegistry struct {
	ports []*Port
}

// NewStaticRegistry creates a registry over ports.
func NewStaticRegistry(ports ...*Port) *StaticRegistry {
	return &StaticRegistry{ports: ports}
}

func (r *StaticRegistry) List(ctx context.Context) ([]*Port, error) {
	return append([]*Port(nil), r.ports...), nil
}

func (r *StaticRegistry) Request(ctx context.Context, name string) (*Port, error) {
	if name == "" {
		return nil, ErrPortCancelled
	}
	for _, p := range r.ports {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown port %q", name)
}
