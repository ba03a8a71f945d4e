package dirpull

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats holds live server counters. All fields are updated atomically.
type Stats struct {
	start time.Time

	totalConnections  uint64
	activeConnections int64
	totalCommands     uint64
	totalFiles        uint64
	totalBytes        uint64
	acceptErrors      uint64
}

func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

type StatsSnapshot struct {
	Uptime            string
	TotalConnections  uint64
	ActiveConnections int64
	TotalCommands     uint64
	FilesSent         uint64
	BytesSent         uint64
	BytesSentHuman    string
	AcceptErrors      uint64
}

func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	bytes := atomic.LoadUint64(&s.totalBytes)
	return StatsSnapshot{
		Uptime:            time.Since(s.start).Round(time.Second).String(),
		TotalConnections:  atomic.LoadUint64(&s.totalConnections),
		ActiveConnections: atomic.LoadInt64(&s.activeConnections),
		TotalCommands:     atomic.LoadUint64(&s.totalCommands),
		FilesSent:         atomic.LoadUint64(&s.totalFiles),
		BytesSent:         bytes,
		BytesSentHuman:    humanize.Bytes(bytes),
		AcceptErrors:      atomic.LoadUint64(&s.acceptErrors),
	}
}

func (s *Stats) connectionStarted() {
	if s != nil {
		atomic.AddUint64(&s.totalConnections, 1)
		atomic.AddInt64(&s.activeConnections, 1)
	}
}

func (s *Stats) connectionFinished() {
	if s != nil {
		atomic.AddInt64(&s.activeConnections, -1)
	}
}

func (s *Stats) command() {
	if s != nil {
		atomic.AddUint64(&s.totalCommands, 1)
	}
}

func (s *Stats) fileSent(size int64) {
	if s != nil {
		atomic.AddUint64(&s.totalFiles, 1)
		atomic.AddUint64(&s.totalBytes, uint64(size))
	}
}

func (s *Stats) acceptError() {
	if s != nil {
		atomic.AddUint64(&s.acceptErrors, 1)
	}
}
