package dirpull

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/b1naryth1ef/dirpull/logging"
	"github.com/b1naryth1ef/dirpull/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ClientOpts struct {
	Addr string
	// Via is an optional ssh host the connection is forwarded through.
	Via string

	DownloadDir string
	MaxFileSize int64

	In  io.Reader
	Out io.Writer
}

type Client struct {
	opts   ClientOpts
	logger *zap.Logger
}

var ErrServerClosed = errors.New("server closed the connection")

func NewClient(opts ClientOpts) *Client {
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	return &Client{opts: opts, logger: logging.Named("client")}
}

// Run connects to the server and runs one interactive session.
func (c *Client) Run(ctx context.Context) error {
	conn, err := Dial(ctx, c.opts.Addr, c.opts.Via)
	if err != nil {
		return fmt.Errorf("error connecting to server: %w", err)
	}
	return c.Session(ctx, conn)
}

// Session runs the command sender and the response reader against conn until the
// operator types exit (or input ends) and the server has answered everything sent
// before it. conn is closed on return.
func (c *Client) Session(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	fmt.Fprintln(c.opts.Out)
	fmt.Fprintln(c.opts.Out, "list <directory>")
	fmt.Fprintln(c.opts.Out, "download <directory>")
	fmt.Fprintln(c.opts.Out)

	done := make(chan struct{})
	defer close(done)
	lines := scanLines(c.opts.In, done)

	var exited atomic.Bool
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		reader := NewReader(conn, transport.NewLocalFilesystem(c.opts.DownloadDir), c.opts.Out)
		reader.MaxFileSize = c.opts.MaxFileSize

		err := reader.Run()
		if exited.Load() && (errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return ErrServerClosed
		}
		return err
	})

	g.Go(func() error {
		w := bufio.NewWriter(conn)
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || line == "exit" {
					exited.Store(true)
					w.WriteString("exit\n")
					if err := w.Flush(); err != nil {
						c.logger.Debug("failed to send exit", zap.Error(err))
					}
					closeWrite(conn)
					return nil
				}

				w.WriteString(line + "\n")
				if err := w.Flush(); err != nil {
					return err
				}
			}
		}
	})

	err := g.Wait()
	fmt.Fprintln(c.opts.Out, "\nConnection closed")
	if err != nil {
		c.logger.Debug("session ended with error", zap.Error(err))
	}
	return err
}

// scanLines feeds operator input to a channel. The goroutine stays blocked on in
// once the session is over; process exit reclaims it.
func scanLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// closeWrite half-closes conn so the server sees end of input while responses
// already in flight can still be read. Connections without half-close are closed.
func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if cw.CloseWrite() == nil {
			return
		}
	}
	conn.Close()
}
