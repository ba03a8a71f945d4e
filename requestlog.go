package dirpull

import (
	"io"
	"net"
	"os"
	"sync"
	"time"
)

const requestLogTimeFormat = "2006/01/02 15:04:05"

// Entry is one request log record.
type Entry struct {
	Time    time.Time
	Peer    string
	Command string
}

func (e Entry) String() string {
	return e.Time.Format(requestLogTimeFormat) + " " + e.Peer + " " + e.Command
}

type Recorder interface {
	Record(Entry) error
}

// RequestLog is an append-only request log shared by every responder. Each record
// is written as one complete line under a lock, so records from concurrent
// connections never interleave.
type RequestLog struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

func NewRequestLog(w io.Writer) *RequestLog {
	return &RequestLog{w: w}
}

// OpenRequestLog opens (or creates) path for appending.
func OpenRequestLog(path string) (*RequestLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &RequestLog{w: f, c: f}, nil
}

func (l *RequestLog) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	line := []byte(e.String() + "\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(line)
	return err
}

func (l *RequestLog) Close() error {
	if l.c == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Close()
}

// peerIP returns the host part of a remote address, or the address as-is.
func peerIP(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
