// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

// pollInterval bounds every blocking read so cancelled readers are noticed
const pollInterval = 50 * time.Millisecond

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// SerialDriver opens serial ports 8N1 with a short read timeout
type SerialDriver struct{}

func (SerialDriver) Open(name string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return port, nil
}

// WebSocketDriver reaches a deck bridged over WebSocket. The port name is
// ignored; every Open dials URL.
type WebSocketDriver struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

func (d WebSocketDriver) Open(name string, baud int) (io.ReadWriteCloser, error) {
	// Parse and validate URL
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: d.SkipSSLVerify,
		}
	}

	// Build HTTP headers with Basic auth
	headers := http.Header{}
	if d.Username != "" && d.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(d.Username + ":" + d.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, d.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketConnection(conn), nil
}

// WebSocketConnection turns WebSocket messages into a byte stream. Reads
// return (0, nil) after pollInterval without data.
type WebSocketConnection struct {
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}

	buf     []byte
	writeMu sync.Mutex
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:   conn,
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *WebSocketConnection) pump() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		// The bridge forwards the serial stream in either frame type
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		w.frames <- data
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if len(w.buf) == 0 {
		select {
		case data := <-w.frames:
			w.buf = data
		case <-w.done:
			// Drain frames that arrived before the close
			select {
			case data := <-w.frames:
				w.buf = data
			default:
				return 0, ErrConnectionClosed
			}
		case <-time.After(pollInterval):
			return 0, nil
		}
	}

	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	err := w.conn.Close()
	// Unblock a pump stuck on a full channel
	go func() {
		for {
			select {
			case <-w.frames:
			case <-w.done:
				return
			}
		}
	}()
	return err
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("DECK_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenRegistry builds the port registry selected by the connection flags.
// Without --port or --url every USB serial port is a candidate.
func OpenRegistry() (deck.Registry, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		driver := WebSocketDriver{
			URL:           wsURL,
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
		}
		port := deck.NewPort(deck.PortInfo{Name: wsURL}, driver)
		return deck.NewStaticRegistry(port), fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		port := deck.NewPort(deck.PortInfo{Name: portName}, SerialDriver{})
		return deck.NewStaticRegistry(port), fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return deck.NewSerialRegistry(SerialDriver{}), "Serial: all USB ports", nil
}

// OpenPort resolves a single port: the flagged one, or the first USB port
// that answers as a deck.
func OpenPort(ctx context.Context) (*deck.Port, string, error) {
	registry, connInfo, err := OpenRegistry()
	if err != nil {
		return nil, "", err
	}

	ports, err := registry.List(ctx)
	if err != nil {
		return nil, "", err
	}
	if portName != "" || wsURL != "" {
		return ports[0], connInfo, nil
	}

	id := deck.NewIdentifier(baudRate, 0, logger.Named("identify"))
	for _, p := range ports {
		name, ok := id.Identify(ctx, p)
		if ok && deck.IsDeckName(name) {
			return p, fmt.Sprintf("Serial: %s @ %d baud (%s)", p.Name(), baudRate, name), nil
		}
	}
	return nil, "", fmt.Errorf("no deck found on %d port(s)", len(ports))
}
