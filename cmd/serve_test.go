// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/Thermoquad/deckhand/pkg/deck"
	"github.com/Thermoquad/deckhand/pkg/export"
	"github.com/Thermoquad/deckhand/pkg/store"
)

func newTestEngine(t *testing.T, cfg *store.Config) (*engine, *eventHub) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	hub := newEventHub()
	st := store.NewMemory()

	router := deck.NewRouter(deck.RouterOptions{Config: cfg, Saver: st, Notifier: hub, Log: log})
	session := deck.NewSession(deck.SessionOptions{Router: router, Notifier: hub, Log: log})
	discovery := deck.NewDiscovery(deck.DiscoveryOptions{
		Registry: deck.NewStaticRegistry(),
		Session:  session,
		Notifier: hub,
		Log:      log,
	})
	exporter := export.New(router.Config, export.DirImages{}, log)
	uploader := deck.NewUploader(deck.UploaderOptions{
		Session:   session,
		Exporter:  exporter,
		Manifests: st,
		Notifier:  hub,
		Rescan:    func(context.Context) {},
		Log:       log,
	})

	return &engine{
		store:     st,
		registry:  deck.NewStaticRegistry(),
		connInfo:  "test",
		router:    router,
		session:   session,
		discovery: discovery,
		uploader:  uploader,
		exporter:  exporter,
		notifier:  hub,
	}, hub
}

func twoPageConfig() *store.Config {
	return &store.Config{
		PageCount: 2,
		Pages: [][]*store.Button{
			{{Type: store.TypeGoto, GotoPage: 1, Label: "Next"}},
			{},
		},
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := map[string]interface{}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, body
}

func TestServeStatus(t *testing.T) {
	e, hub := newTestEngine(t, twoPageConfig())
	h := newDeckAPI(context.Background(), e, hub).routes()

	rec, body := doRequest(t, h, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["state"] != "disconnected" {
		t.Errorf("state = %v, want disconnected", body["state"])
	}
	if body["listening"] != false || body["uploading"] != false {
		t.Errorf("body = %v", body)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("health code = %d", rec.Code)
	}
}

func TestServePress(t *testing.T) {
	e, hub := newTestEngine(t, twoPageConfig())
	h := newDeckAPI(context.Background(), e, hub).routes()

	tests := []struct {
		path string
		code int
	}{
		{"/buttons/0/0/press", http.StatusOK},
		{"/buttons/0/5/press", http.StatusNotFound},
		{"/buttons/x/0/press", http.StatusBadRequest},
		{"/buttons/0/y/press", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, body := doRequest(t, h, http.MethodPost, tt.path)
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d (%v)", rec.Code, tt.code, body)
			}
		})
	}

	if got := e.router.CurrentPage(); got != 1 {
		t.Errorf("CurrentPage() = %d, want 1 after pressing goto", got)
	}
}

func TestServeShowPage(t *testing.T) {
	e, hub := newTestEngine(t, twoPageConfig())
	h := newDeckAPI(context.Background(), e, hub).routes()

	if rec, _ := doRequest(t, h, http.MethodPost, "/pages/1"); rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
	if got := e.router.CurrentPage(); got != 1 {
		t.Errorf("CurrentPage() = %d, want 1", got)
	}
	if rec, _ := doRequest(t, h, http.MethodPost, "/pages/7"); rec.Code != http.StatusNotFound {
		t.Errorf("out of range code = %d", rec.Code)
	}
}

func TestServeSettingsWhileDisconnected(t *testing.T) {
	e, hub := newTestEngine(t, twoPageConfig())
	h := newDeckAPI(context.Background(), e, hub).routes()

	rec, body := doRequest(t, h, http.MethodPost, "/brightness/40")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d (%v)", rec.Code, body)
	}
	if got := e.router.Config().DeviceSettings.Brightness; got != 40 {
		t.Errorf("brightness = %d, want 40", got)
	}
	saved, err := e.store.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if saved.DeviceSettings.Brightness != 40 {
		t.Errorf("saved brightness = %d, want 40", saved.DeviceSettings.Brightness)
	}

	if rec, _ := doRequest(t, h, http.MethodPost, "/brightness/140"); rec.Code != http.StatusBadRequest {
		t.Errorf("out of range code = %d", rec.Code)
	}

	if rec, _ := doRequest(t, h, http.MethodPost, "/sleep/off"); rec.Code != http.StatusAccepted {
		t.Errorf("sleep code = %d", rec.Code)
	}
	if e.router.Config().DeviceSettings.SleepEnabled {
		t.Error("sleep still enabled")
	}
}

func TestServeUploadMode(t *testing.T) {
	e, hub := newTestEngine(t, twoPageConfig())
	h := newDeckAPI(context.Background(), e, hub).routes()

	if rec, _ := doRequest(t, h, http.MethodPost, "/upload?mode=sideways"); rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

func TestServeEvents(t *testing.T) {
	e, hub := newTestEngine(t, twoPageConfig())
	srv := httptest.NewServer(newDeckAPI(context.Background(), e, hub).routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Event(deck.LabelChanged{Key: deck.Key{Page: 0, Button: 3}, Text: "04:59"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m eventMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Type != "label" || m.Text != "04:59" || m.Button == nil || *m.Button != 3 {
		t.Errorf("event = %s", data)
	}
}

func TestLiveCells(t *testing.T) {
	target := time.UnixMilli(1_700_000_000_000)
	snap := deck.Snapshot{
		Labels:   map[deck.Key]string{{Page: 1, Button: 0}: "00:10"},
		Counters: map[deck.Key]int{{Page: 0, Button: 2}: 7},
		Timers:   map[deck.Key]time.Time{{Page: 1, Button: 0}: target},
	}

	cells := liveCells(snap)
	if len(cells) != 2 {
		t.Fatalf("cells = %+v", cells)
	}
	if cells[0].Page != 0 || cells[0].Counter == nil || *cells[0].Counter != 7 {
		t.Errorf("cells[0] = %+v", cells[0])
	}
	if cells[1].Label != "00:10" || cells[1].Target == nil || *cells[1].Target != target.UnixMilli() {
		t.Errorf("cells[1] = %+v", cells[1])
	}
}

func TestParseSettings(t *testing.T) {
	brightness := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{"55%", 55, true},
		{" 100 ", 100, true},
		{"101", 0, false},
		{"-1", 0, false},
		{"bright", 0, false},
	}
	for _, tt := range brightness {
		got, err := parseBrightness(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseBrightness(%q) = %d, %v", tt.in, got, err)
		}
	}

	sleep := []struct {
		in      string
		enabled bool
		minutes int
		ok      bool
	}{
		{"off", false, 0, true},
		{"0", false, 0, true},
		{"5", true, 5, true},
		{"15m", true, 15, true},
		{"soon", false, 0, false},
	}
	for _, tt := range sleep {
		enabled, minutes, err := parseSleep(tt.in)
		if (err == nil) != tt.ok || enabled != tt.enabled || minutes != tt.minutes {
			t.Errorf("parseSleep(%q) = %v, %d, %v", tt.in, enabled, minutes, err)
		}
	}
}

func TestParseChoice(t *testing.T) {
	tests := map[string]deck.UploadChoice{
		"":        deck.UploadChangedOnly,
		"c":       deck.UploadChangedOnly,
		"Changed": deck.UploadChangedOnly,
		"f":       deck.UploadFull,
		"FULL":    deck.UploadFull,
		"n":       deck.UploadCancel,
		"later":   deck.UploadCancel,
	}
	for in, want := range tests {
		if got := parseChoice(in); got != want {
			t.Errorf("parseChoice(%q) = %v, want %v", in, got, want)
		}
	}
}
