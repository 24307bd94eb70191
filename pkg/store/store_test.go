// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestStoreRoundTripOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.cbor")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Put("alpha", []byte("one")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.SetDeviceHost("http://deck.lan"); err != nil {
		t.Fatalf("SetDeviceHost() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	got, ok := reopened.Get("alpha")
	if !ok || string(got) != "one" {
		t.Errorf("Get(alpha) = %q, %v; want one, true", got, ok)
	}
	if host := reopened.DeviceHost(); host != "http://deck.lan" {
		t.Errorf("DeviceHost() = %q", host)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("store dir has %d entries, want only the store file", len(entries))
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewMemory()
	s.Put("k", []byte("v"))
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := s.Get("k"); ok {
		t.Error("key still present after Delete")
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := NewMemory()
	s.Put("k", []byte("abc"))
	v, _ := s.Get("k")
	v[0] = 'x'
	again, _ := s.Get("k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through Get: %q", again)
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.cbor")
	if err := os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open() on corrupt file succeeded")
	}
}

func TestDefaultPathFromEnv(t *testing.T) {
	t.Setenv(EnvStorePath, "/tmp/custom.cbor")
	got, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() error = %v", err)
	}
	if got != "/tmp/custom.cbor" {
		t.Errorf("DefaultPath() = %q", got)
	}
}

func TestManifestPersistence(t *testing.T) {
	s := NewMemory()

	m, err := s.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if len(m) != 0 {
		t.Errorf("fresh manifest = %v, want empty", m)
	}

	want := Manifest{"esp_config.json": "aa", "text_1.jpg": "bb"}
	if err := s.SaveManifest(want); err != nil {
		t.Fatalf("SaveManifest() error = %v", err)
	}
	got, err := s.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadManifest() = %v, want %v", got, want)
	}
}

func TestManifestMerge(t *testing.T) {
	old := Manifest{"a.jpg": "1", "gone.jpg": "9"}
	merged := old.Merge(Manifest{"a.jpg": "2", "b.jpg": "3"})

	want := Manifest{"a.jpg": "2", "b.jpg": "3", "gone.jpg": "9"}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("Merge() = %v, want %v", merged, want)
	}
	if old["a.jpg"] != "1" {
		t.Error("Merge() mutated the receiver")
	}
}

func TestConfigPersistence(t *testing.T) {
	s := NewMemory()

	cfg, err := s.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cfg.DeviceName = "Desk"
	cfg.Pages[0] = []*Button{{Type: TypeToggle, Label: "Mic", ToggleState: true}}
	if err := s.SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := s.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.DeviceName != "Desk" {
		t.Errorf("DeviceName = %q", loaded.DeviceName)
	}
	b := loaded.Button(0, 0)
	if b == nil || !b.ToggleState || b.Label != "Mic" {
		t.Errorf("Button(0,0) = %+v", b)
	}
}
