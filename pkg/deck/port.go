// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

var (
	ErrPortOpen        = errors.New("port already open")
	ErrPortClosed      = errors.New("port not open")
	ErrReaderLocked    = errors.New("port reader is locked")
	ErrReaderCancelled = errors.New("reader cancelled")
	ErrReaderReleased  = errors.New("reader released")
)

// Driver opens OS handles. Handles returned by Open should time out reads
// periodically by returning (0, nil) so a cancelled reader is noticed.
type Driver interface {
	Open(name string, baud int) (io.ReadWriteCloser, error)
}

// PortInfo describes a port as reported by the OS.
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// Port is a named serial endpoint that may be opened and closed many times.
//
// At most one Reader may be attached at a time. A port with an attached
// reader refuses to close; use ForceFree to cancel the reader first.
type Port struct {
	info   PortInfo
	driver Driver

	mu     sync.Mutex
	rw     io.ReadWriteCloser
	reader *Reader

	writeMu sync.Mutex
}

// NewPort creates a closed port.
func NewPort(info PortInfo, driver Driver) *Port {
	return &Port{info: info, driver: driver}
}

// Name returns the OS name of the port.
func (p *Port) Name() string {
	return p.info.Name
}

// Info returns the enumeration details of the port.
func (p *Port) Info() PortInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *Port) setInfo(info PortInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
}

// Open opens the OS handle.
func (p *Port) Open(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rw != nil {
		return ErrPortOpen
	}
	rw, err := p.driver.Open(p.info.Name, baud)
	if err != nil {
		return err
	}
	p.rw = rw
	return nil
}

// IsOpen reports whether the OS handle is open.
func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rw != nil
}

// Locked reports whether a reader is attached.
func (p *Port) Locked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reader != nil
}

// AcquireReader attaches the port's only reader.
func (p *Port) AcquireReader() (*Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rw == nil {
		return nil, ErrPortClosed
	}
	if p.reader != nil {
		return nil, ErrReaderLocked
	}
	p.reader = &Reader{port: p, rw: p.rw}
	return p.reader, nil
}

func (p *Port) attachedReader() *Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reader
}

func (p *Port) detach(r *Reader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader == r {
		p.reader = nil
	}
}

// Write writes all of b.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	rw := p.rw
	p.mu.Unlock()
	if rw == nil {
		return 0, ErrPortClosed
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	written := 0
	for written < len(b) {
		n, err := rw.Write(b[written:])
		written += n
		if err != nil {
			return written, fmt.Errorf("write %s: %w", p.info.Name, err)
		}
		if n == 0 {
			return written, fmt.Errorf("write %s: %w", p.info.Name, io.ErrShortWrite)
		}
	}
	return written, nil
}

// WriteString writes a protocol line.
func (p *Port) WriteString(s string) error {
	_, err := p.Write([]byte(s))
	return err
}

// Close closes the OS handle. It fails while a reader is attached.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rw == nil {
		return ErrPortClosed
	}
	if p.reader != nil {
		return ErrReaderLocked
	}
	err := p.rw.Close()
	p.rw = nil
	return err
}

// Reader is the single consumer of a port's input.
type Reader struct {
	port      *Port
	rw        io.ReadWriteCloser
	cancelled atomic.Bool
	released  atomic.Bool
}

// Read returns the next chunk of input. It hides driver read timeouts and
// returns ErrReaderCancelled once Cancel has been called.
func (r *Reader) Read(b []byte) (int, error) {
	for {
		if r.cancelled.Load() {
			return 0, ErrReaderCancelled
		}
		if r.released.Load() {
			return 0, ErrReaderReleased
		}
		n, err := r.rw.Read(b)
		if r.cancelled.Load() {
			return 0, ErrReaderCancelled
		}
		if err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
	}
}

// Cancel makes pending and future reads fail with ErrReaderCancelled.
func (r *Reader) Cancel() {
	r.cancelled.Store(true)
}

// Release detaches the reader from its port. Safe to call more than once.
func (r *Reader) Release() {
	if r.released.Swap(true) {
		return
	}
	r.port.detach(r)
}

// ForceFree cancels and releases any attached reader and closes the port.
// It never fails and leaves the port closed and unlocked.
func ForceFree(p *Port) {
	if p == nil {
		return
	}
	if r := p.attachedReader(); r != nil {
		r.Cancel()
		r.Release()
	}
	CloseQuietly(p)
}

// CloseQuietly closes c, ignoring every error including already-closed.
func CloseQuietly(c io.Closer) {
	if c == nil {
		return
	}
	_ = c.Close()
}
