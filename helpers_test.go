package dirpull

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/b1naryth1ef/dirpull/transport"
)

// memRecorder keeps request log entries in memory.
type memRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memRecorder) Record(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRecorder) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Command)
	}
	return out
}

// makeTree creates root/docs with a.txt ("abc"), b.txt (empty) and img/.
func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"docs/a.txt":       "abc",
		"docs/b.txt":       "",
		"docs/img/cat.png": "meow",
	})
	return root
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

// flakyFS fails or shrinks selected files to simulate files changing mid-transfer.
type flakyFS struct {
	*transport.LocalFilesystem

	mu       sync.Mutex
	failOpen map[string]bool
	shrink   map[string]bool
	opens    map[string]int
}

func newFlakyFS(root string) *flakyFS {
	return &flakyFS{
		LocalFilesystem: transport.NewLocalFilesystem(root),
		failOpen:        map[string]bool{},
		shrink:          map[string]bool{},
		opens:           map[string]int{},
	}
}

func (f *flakyFS) Open(path string) (io.ReadCloser, int64, error) {
	name := filepath.Base(path)

	f.mu.Lock()
	f.opens[name]++
	n := f.opens[name]
	f.mu.Unlock()

	if f.failOpen[name] {
		return nil, 0, os.ErrPermission
	}
	r, size, err := f.LocalFilesystem.Open(path)
	if err != nil || !f.shrink[name] || n == 1 {
		return r, size, err
	}
	defer r.Close()
	return io.NopCloser(strings.NewReader("x")), size, nil
}

// startServer runs a server on a loopback port until the test ends.
func startServer(t *testing.T, opts ServerOpts) (*Server, string) {
	t.Helper()
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.Recorder == nil && opts.RequestLogPath == "" {
		opts.Recorder = &memRecorder{}
	}

	server, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return server, server.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
