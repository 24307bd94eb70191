// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deckproto

import (
	"bytes"
	"errors"
	"strings"
)

// ErrLineTooLong is reported when a line exceeds the splitter's limit.
// The offending line is dropped up to and including its newline.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// LineSplitter turns a byte stream into trimmed, non-empty text lines.
type LineSplitter struct {
	buf        []byte
	maxLen     int
	discarding bool
}

// NewLineSplitter creates a splitter. maxLen <= 0 selects MaxLineLength.
func NewLineSplitter(maxLen int) *LineSplitter {
	if maxLen <= 0 {
		maxLen = MaxLineLength
	}
	return &LineSplitter{maxLen: maxLen}
}

// Feed consumes a chunk and returns every line it completed, in order.
// A non-nil error never hides lines; both are returned together.
func (s *LineSplitter) Feed(chunk []byte) ([]string, error) {
	var lines []string
	var err error

	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			if !s.discarding {
				s.buf = append(s.buf, chunk...)
				if len(s.buf) > s.maxLen {
					s.buf = s.buf[:0]
					s.discarding = true
					err = ErrLineTooLong
				}
			}
			return lines, err
		}

		part := chunk[:i]
		chunk = chunk[i+1:]

		if s.discarding {
			s.discarding = false
			continue
		}

		s.buf = append(s.buf, part...)
		if len(s.buf) > s.maxLen {
			s.buf = s.buf[:0]
			err = ErrLineTooLong
			continue
		}

		line := strings.TrimSpace(strings.ToValidUTF8(string(s.buf), "�"))
		s.buf = s.buf[:0]
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines, err
}

// Buffered returns the number of bytes held for an incomplete line.
func (s *LineSplitter) Buffered() int {
	return len(s.buf)
}

// Reset drops any partial line.
func (s *LineSplitter) Reset() {
	s.buf = s.buf[:0]
	s.discarding = false
}
