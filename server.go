package dirpull

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/b1naryth1ef/dirpull/logging"
	"github.com/b1naryth1ef/dirpull/metrics"
	"github.com/b1naryth1ef/dirpull/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers    = 10
	DefaultQueueSize  = 64
	DefaultRequestLog = "requests.log"
)

type ServerOpts struct {
	Addr string

	// Workers is the number of connections served at once. Accepted connections
	// beyond that wait in a queue of QueueSize; when the queue is full the accept
	// loop blocks and new clients wait in the listen backlog.
	Workers   int
	QueueSize int

	// Root confines every requested path under it. Empty serves paths as given.
	Root string

	RequestLogPath string
	// Recorder replaces the file request log when set.
	Recorder Recorder

	// StatusAddr enables the JSON/metrics HTTP endpoint when set.
	StatusAddr string
}

type Server struct {
	opts     ServerOpts
	fs       transport.Filesystem
	recorder Recorder
	closer   func() error
	stats    *Stats
	logger   *zap.Logger

	listener net.Listener
	queue    chan net.Conn

	mu     sync.Mutex
	active map[net.Conn]struct{}
}

var ErrNotListening = errors.New("server is not listening")

func NewServer(opts ServerOpts) (*Server, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.RequestLogPath == "" {
		opts.RequestLogPath = DefaultRequestLog
	}

	s := &Server{
		opts:     opts,
		fs:       transport.NewLocalFilesystem(opts.Root),
		recorder: opts.Recorder,
		closer:   func() error { return nil },
		stats:    NewStats(),
		logger:   logging.Named("server"),
		queue:    make(chan net.Conn, opts.QueueSize),
		active:   make(map[net.Conn]struct{}),
	}

	if s.recorder == nil {
		log, err := OpenRequestLog(opts.RequestLogPath)
		if err != nil {
			return nil, err
		}
		s.recorder = log
		s.closer = log.Close
	}
	return s, nil
}

func (s *Server) Stats() *Stats {
	return s.stats
}

func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("starting server", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound listen address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled. Cancelling closes the listener
// and every open connection; Serve returns once all workers have stopped.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return ErrNotListening
	}
	defer s.closer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		s.listener.Close()
		s.closeActive()
		return nil
	})

	g.Go(func() error {
		return s.acceptLoop(gctx)
	})

	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error {
			s.worker(gctx)
			return nil
		})
	}

	if s.opts.StatusAddr != "" {
		handler := transport.NewHTTPServer(s.fs, func() any { return s.stats.Snapshot() })
		handler.Handle("GET /metrics", metrics.Handler())
		httpServer := &http.Server{Addr: s.opts.StatusAddr, Handler: handler}

		g.Go(func() error {
			s.logger.Info("starting status endpoint", zap.String("addr", s.opts.StatusAddr))
			err := httpServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	defer close(s.queue)

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}

			metrics.RecordAcceptError()
			s.stats.acceptError()
			s.logger.Error("error accepting connection", zap.Error(err))

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		metrics.RecordAccept()
		s.logger.Info("processing request", zap.String("peer", peerIP(conn.RemoteAddr())))

		select {
		case s.queue <- conn:
			metrics.SetQueued(len(s.queue))
		case <-ctx.Done():
			conn.Close()
			return nil
		}
	}
}

func (s *Server) worker(ctx context.Context) {
	for conn := range s.queue {
		metrics.SetQueued(len(s.queue))
		if ctx.Err() != nil {
			conn.Close()
			continue
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	done := metrics.ConnectionStarted()
	defer done()
	s.stats.connectionStarted()
	defer s.stats.connectionFinished()

	responder := NewResponder(conn, s.fs, s.recorder, s.stats, s.logger)
	if err := responder.Serve(); err != nil {
		s.logger.Warn("connection terminated",
			zap.String("peer", peerIP(conn.RemoteAddr())),
			zap.Error(err),
		)
	}
}

// track registers conn for shutdown. It reports false once shutdown has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return false
	}
	s.active[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		delete(s.active, conn)
	}
}

func (s *Server) closeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.active {
		conn.Close()
	}
	s.active = nil
}
