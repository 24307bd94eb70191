// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/deckhand/pkg/export"
)

// DefaultDeviceHost is the deck's mDNS address.
const DefaultDeviceHost = "http://smartdeck.local"

// NormalizeHost returns host with a scheme and without a trailing slash.
// An empty host selects DefaultDeviceHost.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return DefaultDeviceHost
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}

// HTTPUploader uploads every file to a deck reachable over the network.
type HTTPUploader struct {
	Client   *http.Client
	Notifier Notifier
	Log      *zap.SugaredLogger
}

// NewHTTPUploader creates an uploader with a 30 second request timeout.
func NewHTTPUploader(notifier Notifier, log *zap.SugaredLogger) *HTTPUploader {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HTTPUploader{
		Client:   &http.Client{Timeout: 30 * time.Second},
		Notifier: notifier,
		Log:      log,
	}
}

// Upload posts each file to /upload in order, then asks the deck to
// reboot. The first failing file aborts the sequence.
func (u *HTTPUploader) Upload(ctx context.Context, host string, files []export.File) error {
	host = NormalizeHost(host)

	for i, f := range files {
		u.Notifier.Progress(Progress{File: f.Name, Index: i + 1, Total: len(files), Bytes: len(f.Data)})
		u.Notifier.Status(fmt.Sprintf("Uploading %s (%d/%d)", f.Name, i+1, len(files)))
		if err := u.postFile(ctx, host, f); err != nil {
			u.Log.Errorw("http upload failed", "host", host, "file", f.Name, "error", err)
			u.Notifier.Status("Error: Upload failed for " + f.Name)
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/reboot",
		strings.NewReader(`{"action":"reboot"}`))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := u.do(req, "reboot"); err != nil {
		u.Log.Errorw("reboot request failed", "host", host, "error", err)
		u.Notifier.Status("Error: Reboot request failed")
		return err
	}

	u.Log.Infow("http upload finished", "host", host, "files", len(files))
	u.Notifier.Status(fmt.Sprintf("Success! (%d uploaded)", len(files)))
	return nil
}

func (u *HTTPUploader) postFile(ctx context.Context, host string, f export.File) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", f.Name)
	if err != nil {
		return err
	}
	if _, err := part.Write(f.Data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return u.do(req, f.Name)
}

func (u *HTTPUploader) do(req *http.Request, name string) error {
	resp, err := u.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: %s", name, resp.Status)
	}
	u.Log.Debugw("posted", "name", name, "status", resp.StatusCode)
	return nil
}
