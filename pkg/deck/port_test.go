// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"errors"
	"testing"
)

func TestForceFreeClosedPort(t *testing.T) {
	drv := newFakeDriver()
	p := drv.add("/dev/ttyACM0", newFakeDevice(nil))

	ForceFree(p)
	ForceFree(p)
	ForceFree(nil)

	if p.IsOpen() || p.Locked() {
		t.Errorf("port open=%v locked=%v, want closed and unlocked", p.IsOpen(), p.Locked())
	}
}

func TestForceFreeLockedPort(t *testing.T) {
	drv := newFakeDriver()
	dev := newFakeDevice(nil)
	p := drv.add("/dev/ttyACM0", dev)

	if err := p.Open(115200); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	r, err := p.AcquireReader()
	if err != nil {
		t.Fatalf("AcquireReader() error = %v", err)
	}
	if err := p.Close(); !errors.Is(err, ErrReaderLocked) {
		t.Errorf("Close() with reader = %v, want ErrReaderLocked", err)
	}

	ForceFree(p)

	if p.IsOpen() || p.Locked() || dev.isOpen() {
		t.Error("ForceFree left the port open or locked")
	}
	if _, err := r.Read(make([]byte, 8)); !errors.Is(err, ErrReaderCancelled) {
		t.Errorf("Read() after ForceFree = %v, want ErrReaderCancelled", err)
	}
	r.Release()
}

func TestPortSingleReader(t *testing.T) {
	drv := newFakeDriver()
	p := drv.add("/dev/ttyACM0", newFakeDevice(nil))

	if _, err := p.AcquireReader(); !errors.Is(err, ErrPortClosed) {
		t.Errorf("AcquireReader() on closed port = %v, want ErrPortClosed", err)
	}
	if err := p.Open(115200); err != nil {
		t.Fatal(err)
	}
	if err := p.Open(115200); !errors.Is(err, ErrPortOpen) {
		t.Errorf("second Open() = %v, want ErrPortOpen", err)
	}

	r, err := p.AcquireReader()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.AcquireReader(); !errors.Is(err, ErrReaderLocked) {
		t.Errorf("second AcquireReader() = %v, want ErrReaderLocked", err)
	}

	r.Release()
	r.Release()
	if p.Locked() {
		t.Error("port still locked after Release")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestPortReadHidesTimeouts(t *testing.T) {
	drv := newFakeDriver()
	dev := newFakeDevice(nil)
	p := drv.add("/dev/ttyACM0", dev)
	if err := p.Open(115200); err != nil {
		t.Fatal(err)
	}
	defer ForceFree(p)

	r, err := p.AcquireReader()
	if err != nil {
		t.Fatal(err)
	}

	go dev.send("SYNC_PAGE:0")
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "SYNC_PAGE:0\n" {
		t.Errorf("Read() = %q, %v", buf[:n], err)
	}
}

func TestStaticRegistry(t *testing.T) {
	drv := newFakeDriver()
	a := drv.add("ws-a", newFakeDevice(nil))
	b := drv.add("ws-b", newFakeDevice(nil))
	reg := NewStaticRegistry(a, b)

	ports, err := reg.List(context.Background())
	if err != nil || len(ports) != 2 {
		t.Fatalf("List() = %v, %v", ports, err)
	}

	tests := []struct {
		name    string
		want    *Port
		wantErr error
	}{
		{"ws-b", b, nil},
		{"", nil, ErrPortCancelled},
	}
	for _, tt := range tests {
		got, err := reg.Request(context.Background(), tt.name)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Request(%q) error = %v, want %v", tt.name, err, tt.wantErr)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("Request(%q) = %v", tt.name, got)
		}
	}

	if _, err := reg.Request(context.Background(), "missing"); err == nil {
		t.Error("Request(missing) expected error")
	}
}
