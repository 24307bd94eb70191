// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/deckhand/pkg/deckproto"
	"github.com/Thermoquad/deckhand/pkg/export"
	"github.com/Thermoquad/deckhand/pkg/store"
)

var (
	ErrUploadCancelled = errors.New("upload cancelled")
	ErrReplyTimeout    = errors.New("no reply from device")
	ErrStreamClosed    = errors.New("device stream closed")
)

// Upload stages
const (
	StageStart  = "start"
	StageInit   = "init"
	StageData   = "data"
	StageFinish = "finish"
)

// UploadError reports where an upload failed.
type UploadError struct {
	Stage string
	File  string
	Reply string // unexpected reply, if any
	Err   error  // I/O failure, if any
}

func (e *UploadError) Error() string {
	detail := e.Reply
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	switch e.Stage {
	case StageInit:
		return fmt.Sprintf("Init failed: %s (%s)", e.File, detail)
	case StageData:
		return fmt.Sprintf("Data failed: %s (%s)", e.File, detail)
	case StageStart:
		return fmt.Sprintf("Device not ready (%s)", detail)
	default:
		return fmt.Sprintf("Device did not finish (%s)", detail)
	}
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// UploadOptions selects the port and mode of a smart upload.
type UploadOptions struct {
	// Port is used when no connection is active.
	Port *Port

	// Choice skips the confirmation when set. A zero Choice asks the
	// Notifier.
	Choice UploadChoice
}

// UploadResult summarizes a smart upload.
type UploadResult struct {
	Uploaded int
	Skipped  int
	UpToDate bool
}

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	Session   *Session
	Exporter  Exporter
	Manifests ManifestStore
	Notifier  Notifier
	Timings   Timings

	// Rescan runs after the settle delay that follows every committed
	// upload. Nil selects Discovery.Search.
	Rescan    func(ctx context.Context)
	Discovery *Discovery

	Log *zap.SugaredLogger
}

// Uploader runs the serial smart upload.
type Uploader struct {
	session   *Session
	exporter  Exporter
	manifests ManifestStore
	notifier  Notifier
	timings   Timings
	rescan    func(ctx context.Context)
	log       *zap.SugaredLogger
}

// NewUploader creates an uploader.
func NewUploader(opts UploaderOptions) *Uploader {
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Rescan == nil && opts.Discovery != nil {
		d := opts.Discovery
		opts.Rescan = func(ctx context.Context) { d.Search(ctx) }
	}
	return &Uploader{
		session:   opts.Session,
		exporter:  opts.Exporter,
		manifests: opts.Manifests,
		notifier:  opts.Notifier,
		timings:   opts.Timings,
		rescan:    opts.Rescan,
		log:       opts.Log,
	}
}

// Upload exports, diffs against the saved manifest and, once confirmed,
// transfers the selected files. After confirmation the upload ignores ctx
// cancellation and always ends with the connection torn down and a rescan
// scheduled.
func (u *Uploader) Upload(ctx context.Context, opts UploadOptions) (UploadResult, error) {
	files, err := u.exporter.Export(ctx)
	if err != nil {
		u.notifier.Status("Error: " + err.Error())
		return UploadResult{}, fmt.Errorf("export: %w", err)
	}

	prev, err := u.manifests.LoadManifest()
	if err != nil {
		u.log.Warnw("manifest unreadable, treating every file as changed", "error", err)
		prev = store.Manifest{}
	}
	plan := Diff(prev, files)
	u.log.Infow("upload plan", "files", len(plan.Files), "changed", len(plan.Changed))

	choice := opts.Choice
	if choice == UploadCancel {
		choice, err = u.notifier.Confirm(ctx, plan)
		if err != nil {
			return UploadResult{}, err
		}
	}
	if choice == UploadCancel {
		u.notifier.Status(StatusCancelled)
		return UploadResult{}, ErrUploadCancelled
	}

	selected := plan.Select(choice == UploadFull)
	if len(selected) == 0 {
		// A confirmed upload releases the port even when nothing is sent.
		u.session.Disconnect()
		u.notifier.Status(StatusUpToDate)
		u.scheduleRescan(context.WithoutCancel(ctx))
		return UploadResult{Skipped: len(files), UpToDate: true}, nil
	}

	return u.commit(context.WithoutCancel(ctx), opts.Port, plan, selected, prev)
}

func (u *Uploader) commit(ctx context.Context, port *Port, plan Plan, selected []export.File, prev store.Manifest) (UploadResult, error) {
	result := UploadResult{Uploaded: len(selected), Skipped: len(plan.Files) - len(selected)}

	p, r, err := u.session.BeginUpload(port)
	if err != nil {
		u.fail(err)
		if !errors.Is(err, ErrBusy) {
			u.scheduleRescan(ctx)
		}
		return UploadResult{}, err
	}

	u.log.Infow("upload started", "port", p.Name(), "files", len(selected))
	replies := newReplyReader(r, u.log)
	err = u.transfer(p, replies, selected)
	replies.stop()
	u.session.EndUpload(r)

	if err == nil {
		if serr := u.manifests.SaveManifest(prev.Merge(plan.Hashes)); serr != nil {
			u.log.Warnw("save manifest failed", "error", serr)
		}
		u.log.Infow("upload finished", "uploaded", result.Uploaded, "skipped", result.Skipped)
		u.notifier.Status(fmt.Sprintf("Success! (%d uploaded, %d skipped)", result.Uploaded, result.Skipped))
	} else {
		u.fail(err)
	}

	u.scheduleRescan(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	return result, nil
}

func (u *Uploader) fail(err error) {
	u.log.Errorw("upload failed", "error", err)
	u.notifier.Status("Error: " + err.Error())
	u.notifier.Alert("Upload failed", err.Error())
}

func (u *Uploader) scheduleRescan(ctx context.Context) {
	if u.rescan == nil {
		return
	}
	time.AfterFunc(u.timings.SettleDelay, func() { u.rescan(ctx) })
}

// transfer runs the wire exchange.
func (u *Uploader) transfer(p *Port, replies *replyReader, files []export.File) error {
	timeout := u.timings.ReplyTimeout

	if err := p.WriteString(deckproto.StartUpload()); err != nil {
		return &UploadError{Stage: StageStart, Err: err}
	}
	if err := replies.waitFor(deckproto.ReplyReady, timeout); err != nil {
		return &UploadError{Stage: StageStart, Err: err}
	}

	for i, f := range files {
		u.notifier.Progress(Progress{File: f.Name, Index: i + 1, Total: len(files), Bytes: len(f.Data)})
		u.log.Debugw("sending file", "name", f.Name, "bytes", len(f.Data))

		if err := p.WriteString(deckproto.FileHeader(f.Name, len(f.Data))); err != nil {
			return &UploadError{Stage: StageInit, File: f.Name, Err: err}
		}
		if err := replies.expect(deckproto.ReplyOKFile, timeout); err != nil {
			return uploadErr(StageInit, f.Name, err)
		}

		if _, err := p.Write(f.Data); err != nil {
			return &UploadError{Stage: StageData, File: f.Name, Err: err}
		}
		if err := replies.expect(deckproto.ReplyOKData, timeout); err != nil {
			return uploadErr(StageData, f.Name, err)
		}
	}

	if err := p.WriteString(deckproto.EndUpload()); err != nil {
		return &UploadError{Stage: StageFinish, Err: err}
	}
	if err := replies.waitFor(deckproto.ReplyDoneReboot, timeout); err != nil {
		return &UploadError{Stage: StageFinish, Err: err}
	}

	replies.waitSetup(u.timings.SetupSoftTimeout, u.timings.SetupHardTimeout)
	return nil
}

// unexpectedReply carries a reply that did not match.
type unexpectedReply string

func (e unexpectedReply) Error() string {
	return "unexpected reply " + string(e)
}

func uploadErr(stage, file string, err error) error {
	var got unexpectedReply
	if errors.As(err, &got) {
		return &UploadError{Stage: stage, File: file, Reply: string(got)}
	}
	return &UploadError{Stage: stage, File: file, Err: err}
}

// replyReader turns the upload reader into a stream of reply lines.
type replyReader struct {
	lines chan string
	done  chan struct{}
	err   error // valid once lines is closed
	log   *zap.SugaredLogger
}

func newReplyReader(r *Reader, log *zap.SugaredLogger) *replyReader {
	rr := &replyReader{
		lines: make(chan string),
		done:  make(chan struct{}),
		log:   log,
	}
	go rr.pump(r)
	return rr
}

func (rr *replyReader) pump(r *Reader) {
	defer close(rr.lines)
	splitter := deckproto.NewLineSplitter(0)
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			lines, _ := splitter.Feed(buf[:n])
			for _, line := range lines {
				select {
				case rr.lines <- line:
				case <-rr.done:
					return
				}
			}
		}
		if err != nil {
			rr.err = err
			return
		}
	}
}

func (rr *replyReader) stop() {
	close(rr.done)
}

func (rr *replyReader) next(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line, ok := <-rr.lines:
		if !ok {
			if rr.err != nil {
				return "", fmt.Errorf("%w: %w", ErrStreamClosed, rr.err)
			}
			return "", ErrStreamClosed
		}
		rr.log.Debugw("reply", "line", line)
		return line, nil
	case <-timer.C:
		return "", ErrReplyTimeout
	}
}

// expect requires the very next line to be keyword.
func (rr *replyReader) expect(keyword string, timeout time.Duration) error {
	line, err := rr.next(timeout)
	if err != nil {
		return err
	}
	if line != keyword {
		return unexpectedReply(line)
	}
	return nil
}

// waitFor discards lines until one contains keyword.
func (rr *replyReader) waitFor(keyword string, timeout time.Duration) error {
	for {
		line, err := rr.next(timeout)
		if err != nil {
			return err
		}
		if strings.Contains(line, keyword) {
			return nil
		}
		rr.log.Debugw("ignoring line", "line", line, "want", keyword)
	}
}

// waitSetup waits for SETUP_DONE. Passing the soft timeout only warns;
// the hard timeout or a closed stream ends the wait without failing.
func (rr *replyReader) waitSetup(soft, hard time.Duration) {
	softTimer := time.NewTimer(soft)
	defer softTimer.Stop()
	hardTimer := time.NewTimer(hard)
	defer hardTimer.Stop()

	for {
		select {
		case line, ok := <-rr.lines:
			if !ok {
				rr.log.Debugw("stream ended while waiting for setup", "error", rr.err)
				return
			}
			if strings.Contains(line, deckproto.ReplySetupDone) {
				return
			}
		case <-softTimer.C:
			rr.log.Warn("device has not confirmed setup yet, still waiting")
		case <-hardTimer.C:
			rr.log.Warn("gave up waiting for setup confirmation")
			return
		}
	}
}
