// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/Thermoquad/deckhand/pkg/export"
)

// fakeDeckHTTP mimics the deck's HTTP endpoints.
type fakeDeckHTTP struct {
	mu       sync.Mutex
	uploads  []string
	bodies   map[string]string
	rebooted bool
	failOn   string
}

func (d *fakeDeckHTTP) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/upload", func(w http.ResponseWriter, req *http.Request) {
		file, header, err := req.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		d.mu.Lock()
		defer d.mu.Unlock()
		if header.Filename == d.failOn {
			http.Error(w, "no space", http.StatusInsufficientStorage)
			return
		}
		d.uploads = append(d.uploads, header.Filename)
		d.bodies[header.Filename] = string(data)
	})
	r.Post("/reboot", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Action != "reboot" {
			http.Error(w, "bad reboot", http.StatusBadRequest)
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		d.rebooted = true
	})
	return r
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultDeviceHost},
		{"  ", DefaultDeviceHost},
		{"192.168.1.50", "http://192.168.1.50"},
		{"deck.lan/", "http://deck.lan"},
		{"https://deck.lan//", "https://deck.lan"},
		{"http://smartdeck.local", "http://smartdeck.local"},
	}
	for _, tt := range tests {
		if got := NormalizeHost(tt.in); got != tt.want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHTTPUpload(t *testing.T) {
	deck := &fakeDeckHTTP{bodies: make(map[string]string)}
	srv := httptest.NewServer(deck.routes())
	defer srv.Close()

	n := &recordingNotifier{}
	u := NewHTTPUploader(n, zaptest.NewLogger(t).Sugar())
	files := []export.File{
		{Name: "esp_config.json", Data: []byte(`{"title":"x"}`)},
		{Name: "text_1.jpg", Data: []byte{0xff, 0xd8}},
	}

	if err := u.Upload(context.Background(), srv.URL+"/", files); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if strings.Join(deck.uploads, ",") != "esp_config.json,text_1.jpg" {
		t.Errorf("uploads = %v", deck.uploads)
	}
	if deck.bodies["esp_config.json"] != `{"title":"x"}` {
		t.Errorf("config body = %q", deck.bodies["esp_config.json"])
	}
	if !deck.rebooted {
		t.Error("reboot not requested")
	}
	if len(n.progress) != 2 {
		t.Errorf("progress = %+v", n.progress)
	}
}

func TestHTTPUploadFailure(t *testing.T) {
	deck := &fakeDeckHTTP{bodies: make(map[string]string), failOn: "text_1.jpg"}
	srv := httptest.NewServer(deck.routes())
	defer srv.Close()

	n := &recordingNotifier{}
	u := NewHTTPUploader(n, zaptest.NewLogger(t).Sugar())
	files := []export.File{
		{Name: "esp_config.json", Data: []byte("{}")},
		{Name: "text_1.jpg", Data: []byte{1}},
		{Name: "text_2.jpg", Data: []byte{2}},
	}

	err := u.Upload(context.Background(), srv.URL, files)
	if err == nil {
		t.Fatal("Upload() expected error")
	}
	if want := "post text_1.jpg: 507"; !strings.HasPrefix(err.Error(), want) {
		t.Errorf("error = %q, want prefix %q", err, want)
	}
	if got := n.statuses[len(n.statuses)-1]; got != "Error: Upload failed for text_1.jpg" {
		t.Errorf("status = %q", got)
	}
	if len(deck.uploads) != 1 {
		t.Errorf("uploads after failure = %v", deck.uploads)
	}
	if deck.rebooted {
		t.Error("rebooted after a failed upload")
	}
}
