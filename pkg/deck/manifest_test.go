// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"reflect"
	"testing"

	"github.com/Thermoquad/deckhand/pkg/export"
	"github.com/Thermoquad/deckhand/pkg/store"
)

func TestHashFile(t *testing.T) {
	// sha1("abc")
	if got := HashFile([]byte("abc")); got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Errorf("HashFile(abc) = %s", got)
	}
}

func TestDiff(t *testing.T) {
	a := export.File{Name: "a.jpg", Data: []byte("alpha")}
	b := export.File{Name: "b.jpg", Data: []byte("bravo")}
	files := []export.File{a, b}

	tests := []struct {
		name        string
		prev        store.Manifest
		force       bool
		wantChanged []string
		wantSend    []string
	}{
		{
			name:        "new file only",
			prev:        store.Manifest{"a.jpg": HashFile(a.Data)},
			wantChanged: []string{"b.jpg"},
			wantSend:    []string{"b.jpg"},
		},
		{
			name:        "force sends everything",
			prev:        store.Manifest{"a.jpg": HashFile(a.Data)},
			force:       true,
			wantChanged: []string{"b.jpg"},
			wantSend:    []string{"a.jpg", "b.jpg"},
		},
		{
			name:        "hash differs",
			prev:        store.Manifest{"a.jpg": "stale", "b.jpg": HashFile(b.Data)},
			wantChanged: []string{"a.jpg"},
			wantSend:    []string{"a.jpg"},
		},
		{
			name:        "empty manifest",
			prev:        nil,
			wantChanged: []string{"a.jpg", "b.jpg"},
			wantSend:    []string{"a.jpg", "b.jpg"},
		},
		{
			name:        "stale entries ignored",
			prev:        store.Manifest{"a.jpg": HashFile(a.Data), "b.jpg": HashFile(b.Data), "gone.jpg": "x"},
			wantChanged: []string{},
			wantSend:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Diff(tt.prev, files)
			if got := Names(plan.Changed); !reflect.DeepEqual(got, tt.wantChanged) {
				t.Errorf("changed = %v, want %v", got, tt.wantChanged)
			}
			if got := Names(plan.Select(tt.force)); !reflect.DeepEqual(got, tt.wantSend) {
				t.Errorf("selected = %v, want %v", got, tt.wantSend)
			}
			if len(plan.Changed)+len(plan.Unchanged) != len(files) {
				t.Errorf("changed+unchanged = %d, want %d", len(plan.Changed)+len(plan.Unchanged), len(files))
			}
		})
	}
}

func TestDiffIdempotent(t *testing.T) {
	files := []export.File{
		{Name: "esp_config.json", Data: []byte(`{"pages":[]}`)},
		{Name: "text_1.jpg", Data: []byte{0xff, 0xd8, 0xff}},
		{Name: "empty.jpg", Data: nil},
	}
	prev := store.Manifest{"text_1.jpg": "old", "removed.jpg": "x"}

	first := Diff(prev, files)
	uploaded := prev.Merge(first.Hashes)

	second := Diff(uploaded, files)
	if len(second.Changed) != 0 {
		t.Errorf("second diff changed = %v, want none", Names(second.Changed))
	}
}
