// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// JPEGQuality matches the deck's decoder expectations.
const JPEGQuality = 90

// DirImages serves pre-rendered JPEGs. For each request it tries, in
// order: <Dir>/<Name>, an embedded JPEG data URI, a JPEG icon file
// (absolute or relative to Dir), and finally a solid tile in the
// background color.
type DirImages struct {
	Dir string
}

func (d DirImages) Image(ctx context.Context, req ImageRequest) ([]byte, error) {
	if d.Dir != "" {
		if data, err := os.ReadFile(filepath.Join(d.Dir, req.Name)); err == nil {
			return data, nil
		}
	}

	switch {
	case strings.HasPrefix(req.Icon, "data:image/jpeg;base64,"):
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(req.Icon, "data:image/jpeg;base64,"))
		if err != nil {
			return nil, fmt.Errorf("decode embedded icon: %w", err)
		}
		return data, nil

	case isJPEGName(req.Icon):
		path := req.Icon
		if !filepath.IsAbs(path) && d.Dir != "" {
			path = filepath.Join(d.Dir, path)
		}
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	c, err := ParseHexColor(req.Background)
	if err != nil {
		return nil, err
	}
	return SolidTile(req.Cell, c)
}

func isJPEGName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}

// SolidTile encodes a size x size JPEG filled with c.
func SolidTile(size int, c color.Color) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid tile size %d", size)
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseHexColor parses RRGGBB or RGB, with or without a leading '#'.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
