// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of transaction statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Transactions    uint64
	Replies         uint64
	NoReply         uint64 // completed without a reply by configuration
	Timeouts        uint64
	IntegrityErrors uint64
	FramingErrors   uint64 // bad marker, short frame, length/id mismatch
	TransportErrors uint64
	Alarms          uint64 // replies carrying a hardware alarm

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	ErrorRate       float64 // errors/sec
}

// Errors returns the total number of failed transactions
func (c Counters) Errors() uint64 {
	return c.Timeouts + c.IntegrityErrors + c.FramingErrors + c.TransportErrors
}

// Statistics tracks transaction outcomes of a connection.
// It is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

// Update records the outcome of one transaction. status is nil when no reply
// was read.
func (s *Statistics) Update(status *Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Transactions++
	s.c.LastUpdateTime = time.Now()

	switch {
	case err == nil && status == nil:
		s.c.NoReply++
	case err == nil:
		s.c.Replies++
		if status.Alarm.Active() {
			s.c.Alarms++
		}
	case errors.Is(err, ErrTimeout):
		s.c.Timeouts++
	case errors.Is(err, ErrIntegrity):
		s.c.IntegrityErrors++
	case errors.Is(err, ErrTransport):
		s.c.TransportErrors++
	default:
		s.c.FramingErrors++
	}
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.TransactionRate = float64(c.Transactions) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	percent := func(n uint64) float64 {
		if c.Transactions == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(c.Transactions)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Transactions:    %8d\n", c.Transactions)
	result += fmt.Sprintf("Replies:         %8d (%.1f%%)\n", c.Replies, percent(c.Replies))

	if c.NoReply > 0 {
		result += fmt.Sprintf("No Reply:        %8d (%.1f%%)\n", c.NoReply, percent(c.NoReply))
	}
	if c.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", c.Timeouts, percent(c.Timeouts))
	}
	if c.IntegrityErrors > 0 {
		result += fmt.Sprintf("Integrity Errors:%8d (%.1f%%)\n", c.IntegrityErrors, percent(c.IntegrityErrors))
	}
	if c.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", c.FramingErrors, percent(c.FramingErrors))
	}
	if c.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d (%.1f%%)\n", c.TransportErrors, percent(c.TransportErrors))
	}
	if c.Alarms > 0 {
		result += fmt.Sprintf("Alarms:          %8d\n", c.Alarms)
	}

	result += fmt.Sprintf("Rate:            %8.1f trans/sec\n", c.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
}
