// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/deck"
)

var (
	serveAddr    string
	serveDesktop bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the deck session as a background service with an HTTP API",
	Long: `Keep the deck connected in the background, perform button actions on the
host and expose the session over HTTP for other tools.

Endpoints:
  GET  /health                         liveness
  GET  /status                         session state
  GET  /state                          configuration and live state
  GET  /events                         WebSocket stream of events (JSON)
  POST /search                         bounded search for the deck
  POST /disconnect                     close the connection
  POST /pages/{page}                   show a page
  POST /buttons/{page}/{button}/press  run a button
  POST /brightness/{percent}           set brightness
  POST /sleep/{minutes}                set sleep (0 disables)
  POST /upload?mode=changed|full       serial smart upload

When started by systemd with Type=notify, readiness is reported once the
listener is up.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:6010", "Listen address")
	serveCmd.Flags().BoolVar(&serveDesktop, "desktop-notify", true, "Raise desktop notifications for finished timers")
	addIconsFlag(serveCmd)
}

// Response helpers
func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]interface{}{
		"error": message,
		"code":  status,
	})
}

func successResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]interface{}{
		"status":  "ok",
		"message": message,
	})
}

// deckAPI serves the engine over HTTP
type deckAPI struct {
	e         *engine
	hub       *eventHub
	ctx       context.Context
	uploading atomic.Bool
	upgrader  websocket.Upgrader
}

func newDeckAPI(ctx context.Context, e *engine, hub *eventHub) *deckAPI {
	return &deckAPI{
		e:   e,
		hub: hub,
		ctx: ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

func (a *deckAPI) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"deckhand"}`))
	})

	// WebSocket connections outlive any request timeout
	r.Get("/events", a.events)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/status", a.status)
		r.Get("/state", a.state)
		r.Post("/search", a.search)
		r.Post("/disconnect", a.disconnect)
		r.Post("/pages/{page}", a.showPage)
		r.Post("/buttons/{page}/{button}/press", a.press)
		r.Post("/brightness/{percent}", a.brightness)
		r.Post("/sleep/{minutes}", a.sleep)
		r.Post("/upload", a.upload)
	})

	return r
}

type statusResponse struct {
	State       string `json:"state"`
	Port        string `json:"port,omitempty"`
	Device      string `json:"device,omitempty"`
	Listening   bool   `json:"listening"`
	Scanning    bool   `json:"scanning"`
	Uploading   bool   `json:"uploading"`
	Subscribers int    `json:"subscribers"`
}

func (a *deckAPI) status(w http.ResponseWriter, r *http.Request) {
	s := a.e.session
	jsonResponse(w, http.StatusOK, statusResponse{
		State:       s.State().String(),
		Port:        s.PortName(),
		Device:      s.Device(),
		Listening:   s.Listening(),
		Scanning:    a.e.discovery.Scanning(),
		Uploading:   a.uploading.Load(),
		Subscribers: a.hub.subscribers(),
	})
}

type cellState struct {
	Page    int    `json:"page"`
	Button  int    `json:"button"`
	Label   string `json:"label,omitempty"`
	Counter *int   `json:"counter,omitempty"`
	Target  *int64 `json:"timerTarget,omitempty"`
}

type stateResponse struct {
	Page   int         `json:"page"`
	Config interface{} `json:"config"`
	Live   []cellState `json:"live"`
}

// liveCells flattens the live state maps into a sorted list
func liveCells(snap deck.Snapshot) []cellState {
	cells := make(map[deck.Key]*cellState)
	cell := func(k deck.Key) *cellState {
		c, ok := cells[k]
		if !ok {
			c = &cellState{Page: k.Page, Button: k.Button}
			cells[k] = c
		}
		return c
	}
	for k, text := range snap.Labels {
		cell(k).Label = text
	}
	for k, v := range snap.Counters {
		v := v
		cell(k).Counter = &v
	}
	for k, t := range snap.Timers {
		target := t.UnixMilli()
		cell(k).Target = &target
	}

	out := make([]cellState, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Button < out[j].Button
	})
	return out
}

func (a *deckAPI) state(w http.ResponseWriter, r *http.Request) {
	snap := a.e.router.Snapshot()
	jsonResponse(w, http.StatusOK, stateResponse{
		Page:   snap.Page,
		Config: snap.Config,
		Live:   liveCells(snap),
	})
}

func (a *deckAPI) search(w http.ResponseWriter, r *http.Request) {
	if a.e.session.State() == deck.StateConnected {
		successResponse(w, http.StatusOK, "already connected")
		return
	}
	go a.e.discovery.Search(a.ctx)
	successResponse(w, http.StatusAccepted, "search started")
}

func (a *deckAPI) disconnect(w http.ResponseWriter, r *http.Request) {
	a.e.session.Disconnect()
	successResponse(w, http.StatusOK, deck.StatusDisconnected)
}

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, chi.URLParam(r, name))
	}
	return v, nil
}

func (a *deckAPI) showPage(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.e.router.ShowPage(page); err != nil {
		errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	successResponse(w, http.StatusOK, fmt.Sprintf("page %d", page))
}

func (a *deckAPI) press(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	button, err := intParam(r, "button")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	err = a.e.session.Press(r.Context(), page, button)
	switch {
	case errors.Is(err, deck.ErrNoButton):
		errorResponse(w, http.StatusNotFound, err.Error())
	case err != nil:
		errorResponse(w, http.StatusInternalServerError, err.Error())
	default:
		successResponse(w, http.StatusOK, "pressed")
	}
}

// settingResponse reports a saved setting that may not have reached the deck
func settingResponse(w http.ResponseWriter, err error, done string) {
	switch {
	case errors.Is(err, deck.ErrNotConnected):
		successResponse(w, http.StatusAccepted, done+" (saved; deck not connected)")
	case err != nil:
		errorResponse(w, http.StatusInternalServerError, err.Error())
	default:
		successResponse(w, http.StatusOK, done)
	}
}

func (a *deckAPI) brightness(w http.ResponseWriter, r *http.Request) {
	percent, err := parseBrightness(chi.URLParam(r, "percent"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	settingResponse(w, a.e.session.SetBrightness(percent), fmt.Sprintf("brightness %d", percent))
}

func (a *deckAPI) sleep(w http.ResponseWriter, r *http.Request) {
	enabled, minutes, err := parseSleep(chi.URLParam(r, "minutes"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	settingResponse(w, a.e.session.SetSleep(enabled, minutes), fmt.Sprintf("sleep %d", minutes))
}

func (a *deckAPI) upload(w http.ResponseWriter, r *http.Request) {
	var choice deck.UploadChoice
	switch r.URL.Query().Get("mode") {
	case "", "changed":
		choice = deck.UploadChangedOnly
	case "full":
		choice = deck.UploadFull
	default:
		errorResponse(w, http.StatusBadRequest, "mode must be changed or full")
		return
	}

	if !a.uploading.CompareAndSwap(false, true) {
		errorResponse(w, http.StatusConflict, "upload already running")
		return
	}

	// The upload outlives the request; progress goes to /events
	go func() {
		defer a.uploading.Store(false)
		result, err := a.e.uploader.Upload(a.ctx, deck.UploadOptions{Choice: choice})
		if err != nil {
			logger.Warnw("upload failed", "error", err)
			return
		}
		logger.Infow("upload done", "uploaded", result.Uploaded, "skipped", result.Skipped, "upToDate", result.UpToDate)
	}()
	successResponse(w, http.StatusAccepted, "upload started")
}

func (a *deckAPI) events(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	a.hub.serveEvents(conn)
}

func runServe(cmd *cobra.Command, args []string) error {
	hub := newEventHub()
	e, err := newEngine(engineOptions{Notifier: hub, Desktop: serveDesktop})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := newDeckAPI(ctx, e, hub)
	srv := &http.Server{
		Addr:         serveAddr,
		Handler:      api.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // /events streams indefinitely
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := e.discovery.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnw("discovery stopped", "error", err)
		}
	}()
	if runtime.GOOS == "linux" {
		go func() {
			if err := e.discovery.WatchHotplug(ctx, "/dev"); err != nil {
				logger.Warnw("hotplug watch unavailable", "error", err)
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infow("listening", "addr", serveAddr, "connection", e.connInfo)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warnw("systemd notify failed", "error", err)
	} else if ok {
		logger.Debugw("systemd notified ready")
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return err
	}

	logger.Infow("shutting down")
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("server shutdown failed", "error", err)
	}
	e.session.Disconnect()
	return nil
}
