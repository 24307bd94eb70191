// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deckproto

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks line counts and error rates for a connection
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalLines   uint64
	ValidLines   uint64
	UnknownLines uint64
	ParseErrors  uint64
	Overflows    uint64
	ByKind       map[Kind]uint64

	// Rates (calculated)
	LineRate  float64 // lines/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByKind:         make(map[Kind]uint64),
	}
}

// Update records the outcome of parsing one line
func (s *Statistics) Update(msg Message, parseErr error) {
	s.TotalLines++
	s.LastUpdateTime = time.Now()

	switch {
	case errors.Is(parseErr, ErrUnknownMessage):
		s.UnknownLines++
	case parseErr != nil:
		s.ParseErrors++
	default:
		s.ValidLines++
		s.ByKind[msg.Kind()]++
	}
}

// RecordOverflow counts a line dropped for exceeding MaxLineLength
func (s *Statistics) RecordOverflow() {
	s.Overflows++
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates line and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.LineRate = float64(s.TotalLines) / elapsed
		s.ErrorRate = float64(s.ParseErrors+s.Overflows) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalLines > 0 {
		validPercent = float64(s.ValidLines) * 100.0 / float64(s.TotalLines)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", s.TotalLines)
	result += fmt.Sprintf("Valid Lines:     %8d (%.1f%%)\n", s.ValidLines, validPercent)

	for k := KindPong; k <= KindReply; k++ {
		if n := s.ByKind[k]; n > 0 {
			result += fmt.Sprintf("  %-15s %6d\n", k.String()+":", n)
		}
	}
	if s.UnknownLines > 0 {
		result += fmt.Sprintf("Unknown Lines:   %8d\n", s.UnknownLines)
	}
	if s.ParseErrors > 0 {
		result += fmt.Sprintf("Parse Errors:    %8d\n", s.ParseErrors)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Overlong Lines:  %8d\n", s.Overflows)
	}

	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
