// Package stats tracks the session counters and latency history
// spec.md §10 carries forward from opcuaclientmanager.h's
// SessionStatistics: connection attempts, read/write outcomes,
// reconnect attempts, and a bounded window of completion latencies.
// Nothing here drives behavior — it is read-only bookkeeping updated
// and consumed by pkg/runtime.Runtime (Statistics, AverageResponseTime).
package stats

import (
	"sync/atomic"
	"time"
)

// Session holds the atomic counters mirroring the original's
// std::atomic<int> fields one-to-one.
type Session struct {
	TotalConnections  int64
	FailedConnections int64
	ReadsOK           int64
	ReadsFailed       int64
	WritesOK          int64
	WritesFailed      int64
	ReconnectAttempts int64

	firstConnect atomic.Value // time.Time
	lastConnect  atomic.Value // time.Time
}

// NewSession returns a zeroed Session ready to use.
func NewSession() *Session {
	return &Session{}
}

func (s *Session) RecordConnectAttempt() {
	atomic.AddInt64(&s.TotalConnections, 1)
}

func (s *Session) RecordConnectFailure() {
	atomic.AddInt64(&s.FailedConnections, 1)
}

// RecordConnectSuccess stamps first/last connect time. FirstConnect is
// set only once; LastConnect is overwritten on every success.
func (s *Session) RecordConnectSuccess(at time.Time) {
	if _, ok := s.firstConnect.Load().(time.Time); !ok {
		s.firstConnect.Store(at)
	}
	s.lastConnect.Store(at)
}

func (s *Session) RecordReconnectAttempt() {
	atomic.AddInt64(&s.ReconnectAttempts, 1)
}

func (s *Session) RecordRead(ok bool) {
	if ok {
		atomic.AddInt64(&s.ReadsOK, 1)
	} else {
		atomic.AddInt64(&s.ReadsFailed, 1)
	}
}

func (s *Session) RecordWrite(ok bool) {
	if ok {
		atomic.AddInt64(&s.WritesOK, 1)
	} else {
		atomic.AddInt64(&s.WritesFailed, 1)
	}
}

// Snapshot is an immutable copy of a Session's counters at one instant.
type Snapshot struct {
	TotalConnections  int64
	FailedConnections int64
	ReadsOK           int64
	ReadsFailed       int64
	WritesOK          int64
	WritesFailed      int64
	ReconnectAttempts int64
	FirstConnect      time.Time
	LastConnect       time.Time
}

func (s *Session) Snapshot() Snapshot {
	first, _ := s.firstConnect.Load().(time.Time)
	last, _ := s.lastConnect.Load().(time.Time)
	return Snapshot{
		TotalConnections:  atomic.LoadInt64(&s.TotalConnections),
		FailedConnections: atomic.LoadInt64(&s.FailedConnections),
		ReadsOK:           atomic.LoadInt64(&s.ReadsOK),
		ReadsFailed:       atomic.LoadInt64(&s.ReadsFailed),
		WritesOK:          atomic.LoadInt64(&s.WritesOK),
		WritesFailed:      atomic.LoadInt64(&s.WritesFailed),
		ReconnectAttempts: atomic.LoadInt64(&s.ReconnectAttempts),
		FirstConnect:      first,
		LastConnect:       last,
	}
}
