// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package actions

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Player plays sound files with the platform's command line player.
type Player struct {
	goos string
	log  *zap.SugaredLogger
}

// NewPlayer returns a Player for the running OS.
func NewPlayer(log *zap.SugaredLogger) *Player {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Player{goos: runtime.GOOS, log: log}
}

// Play starts playback and returns without waiting for it to finish.
// Volume is clamped to 0-100.
func (p *Player) Play(ctx context.Context, path string, volume int) error {
	name, args := soundCommand(p.goos, path, volume)
	if name == "" {
		return fmt.Errorf("sound on %s: %w", p.goos, ErrUnsupported)
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("play %s: %w", path, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			p.log.Debugw("sound player exited", "path", path, "error", err)
		}
	}()
	return nil
}

func soundCommand(goos, path string, volume int) (string, []string) {
	volume = min(max(volume, 0), 100)
	path = strings.TrimPrefix(path, "file://")

	switch goos {
	case "linux":
		// paplay volume is linear with 65536 as 100%
		return "paplay", []string{"--volume=" + strconv.Itoa(volume*65536/100), path}
	case "darwin":
		return "afplay", []string{"-v", strconv.FormatFloat(float64(volume)/100, 'f', 2, 64), path}
	case "windows":
		script := fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", strings.ReplaceAll(path, "'", "''"))
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}
	}
	return "", nil
}
