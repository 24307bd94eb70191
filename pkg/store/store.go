// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store persists deckhand state in a single CBOR file.
//
// The file holds a map of keys to opaque blobs. The configuration and the
// upload manifest are stored as JSON blobs under their own keys so they stay
// readable by other tools.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Storage keys
const (
	KeyConfig     = "config"
	KeyManifest   = "smartDeckFileManifest"
	KeyDeviceHost = "deviceHost"
)

// EnvStorePath overrides the default store location.
const EnvStorePath = "DECKHAND_STORE"

// Store is a small persisted key-value map. It is safe for concurrent use.
type Store struct {
	path string
	mu   sync.Mutex
	data map[string][]byte
	enc  cbor.EncMode
}

// DefaultPath returns $DECKHAND_STORE or <user config dir>/deckhand/store.cbor
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvStorePath); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "deckhand", "store.cbor"), nil
}

// Open loads the store at path, creating an empty one if the file is absent.
func Open(path string) (*Store, error) {
	s, err := newStore(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := cbor.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", path, err)
	}
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
	return s, nil
}

// NewMemory returns a store that never touches the disk.
func NewMemory() *Store {
	s, _ := newStore("")
	return s
}

func newStore(path string) (*Store, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	return &Store{path: path, data: make(map[string][]byte), enc: enc}, nil
}

// Path returns the backing file, or "" for a memory store.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the blob stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Put stores a blob and flushes the store to disk.
func (s *Store) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return s.flushLocked()
}

// Delete removes key and flushes the store to disk.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return s.flushLocked()
}

// flushLocked writes the whole map to a temp file and renames it into place.
func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	raw, err := s.enc.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func (s *Store) getJSON(key string, v any) (bool, error) {
	raw, ok := s.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) putJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(key, raw)
}

// LoadConfig returns the stored configuration with defaults applied.
// A missing configuration yields a default one.
func (s *Store) LoadConfig() (*Config, error) {
	cfg := &Config{}
	if _, err := s.getJSON(KeyConfig, cfg); err != nil {
		return nil, err
	}
	cfg.EnsureDefaults()
	return cfg, nil
}

// SaveConfig persists the configuration.
func (s *Store) SaveConfig(cfg *Config) error {
	return s.putJSON(KeyConfig, cfg)
}

// LoadManifest returns the manifest of the last successful upload.
// A missing manifest yields an empty one.
func (s *Store) LoadManifest() (Manifest, error) {
	m := Manifest{}
	if _, err := s.getJSON(KeyManifest, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = Manifest{}
	}
	return m, nil
}

// SaveManifest persists the manifest.
func (s *Store) SaveManifest(m Manifest) error {
	return s.putJSON(KeyManifest, m)
}

// DeviceHost returns the last HTTP upload host, or "".
func (s *Store) DeviceHost() string {
	raw, _ := s.Get(KeyDeviceHost)
	return string(raw)
}

// SetDeviceHost remembers the HTTP upload host.
func (s *Store) SetDeviceHost(host string) error {
	return s.Put(KeyDeviceHost, []byte(host))
}
