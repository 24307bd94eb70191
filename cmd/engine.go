// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deckhand/pkg/actions"
	"github.com/Thermoquad/deckhand/pkg/deck"
	"github.com/Thermoquad/deckhand/pkg/export"
	"github.com/Thermoquad/deckhand/pkg/notify"
	"github.com/Thermoquad/deckhand/pkg/store"
)

// engine is the wired session stack shared by the long-running commands
type engine struct {
	store     *store.Store
	registry  deck.Registry
	connInfo  string
	router    *deck.Router
	session   *deck.Session
	discovery *deck.Discovery
	uploader  *deck.Uploader
	exporter  *export.Exporter
	http      *deck.HTTPUploader
	notifier  deck.Notifier
}

type engineOptions struct {
	Notifier deck.Notifier
	Observer deck.LineObserver
	// Desktop sends timer notifications to the desktop as well
	Desktop bool
}

// iconsDir is where pre-rendered button images are looked up
var iconsDir string

func openStore() (*store.Store, error) {
	path := storePath
	if path == "" {
		var err error
		path, err = store.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}

func resolveIconsDir(st *store.Store, cfg *store.Config) string {
	switch {
	case iconsDir != "":
		return iconsDir
	case cfg.IconSource != "":
		return cfg.IconSource
	case st.Path() != "":
		return filepath.Join(filepath.Dir(st.Path()), "icons")
	}
	return ""
}

func newEngine(opts engineOptions) (*engine, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	cfg, err := st.LoadConfig()
	if err != nil {
		return nil, err
	}
	registry, connInfo, err := OpenRegistry()
	if err != nil {
		return nil, err
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = deck.NopNotifier{}
	}
	if opts.Desktop {
		notifier = desktopNotifier{Notifier: notifier, desktop: notify.NewDesktop()}
	}

	executor := actions.New(logger.Named("actions"))
	router := deck.NewRouter(deck.RouterOptions{
		Config:   cfg,
		Saver:    st,
		Executor: executor,
		Sounds:   executor.Sounds,
		Notifier: notifier,
		Log:      logger.Named("router"),
	})
	session := deck.NewSession(deck.SessionOptions{
		Baud:     baudRate,
		Router:   router,
		Notifier: notifier,
		Observer: opts.Observer,
		Log:      logger.Named("session"),
	})
	discovery := deck.NewDiscovery(deck.DiscoveryOptions{
		Registry:   registry,
		Identifier: deck.NewIdentifier(baudRate, 0, logger.Named("identify")),
		Session:    session,
		Notifier:   notifier,
		Log:        logger.Named("discovery"),
	})
	exporter := export.New(router.Config, export.DirImages{Dir: resolveIconsDir(st, cfg)}, logger.Named("export"))
	uploader := deck.NewUploader(deck.UploaderOptions{
		Session:   session,
		Exporter:  exporter,
		Manifests: st,
		Notifier:  notifier,
		Discovery: discovery,
		Log:       logger.Named("upload"),
	})

	return &engine{
		store:     st,
		registry:  registry,
		connInfo:  connInfo,
		router:    router,
		session:   session,
		discovery: discovery,
		uploader:  uploader,
		exporter:  exporter,
		http:      deck.NewHTTPUploader(notifier, logger.Named("http")),
		notifier:  notifier,
	}, nil
}

// connect searches for the deck and waits for the handshake to finish
func (e *engine) connect(ctx context.Context, timeout time.Duration) error {
	if !e.discovery.Search(ctx) {
		return fmt.Errorf("%s", deck.StatusNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := e.session.WaitState(ctx, deck.StateConnected); err != nil {
		return fmt.Errorf("deck did not answer the handshake: %w", err)
	}
	return nil
}

// desktopNotifier raises desktop notifications and falls back to the
// wrapped notifier when the session bus is unavailable
type desktopNotifier struct {
	deck.Notifier
	desktop *notify.Desktop
}

func (d desktopNotifier) Notify(title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.desktop.Notify(ctx, title, body); err != nil {
		logger.Debugw("desktop notification failed", "error", err)
		d.Notifier.Notify(title, body)
	}
}

// newExporter builds an exporter over the stored configuration without
// touching any port.
func newExporter() (*store.Store, *export.Exporter, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := st.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	config := func() *store.Config { return cfg.Clone() }
	return st, export.New(config, export.DirImages{Dir: resolveIconsDir(st, cfg)}, logger.Named("export")), nil
}

func addIconsFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&iconsDir, "icons", "", "Directory of pre-rendered button images (default: iconSource or next to the store)")
}
