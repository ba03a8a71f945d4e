package dirpull

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"

	"github.com/b1naryth1ef/dirpull/metrics"
	"github.com/b1naryth1ef/dirpull/transport"
	"github.com/b1naryth1ef/dirpull/wire"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ErrBundleAborted means a file changed or became unreadable after its length was
// declared. The connection has to be dropped since the peer can no longer frame
// the rest of the stream.
var ErrBundleAborted = errors.New("bundle aborted")

// Responder serves one client connection, one command at a time.
type Responder struct {
	conn  net.Conn
	fs    transport.Filesystem
	log   Recorder
	stats *Stats
	peer  string

	r      *bufio.Reader
	w      *bufio.Writer
	logger *zap.Logger
}

func NewResponder(conn net.Conn, fs transport.Filesystem, log Recorder, stats *Stats, logger *zap.Logger) *Responder {
	peer := peerIP(conn.RemoteAddr())
	return &Responder{
		conn:   conn,
		fs:     fs,
		log:    log,
		stats:  stats,
		peer:   peer,
		r:      bufio.NewReader(conn),
		w:      bufio.NewWriter(conn),
		logger: logger.With(zap.String("peer", peer)),
	}
}

// Serve reads and answers commands until the client sends exit, the stream ends,
// or a transport error occurs. The connection is always closed on return, after a
// final exit record.
func (r *Responder) Serve() error {
	defer r.close()

	for {
		line, err := wire.ReadLine(r.r)
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		cmd := wire.ParseCommand(line)
		if cmd.Verb == wire.VerbExit {
			return nil
		}

		r.record(cmd.Raw)
		metrics.RecordCommand(cmd.Verb.String())
		r.stats.command()

		if err := r.dispatch(cmd); err != nil {
			if errors.Is(err, ErrBundleAborted) {
				// hand over what was framed so far; the peer fails on the short bundle
				r.w.Flush()
			}
			return err
		}
		if err := r.w.Flush(); err != nil {
			return err
		}
	}
}

func (r *Responder) dispatch(cmd wire.Command) error {
	switch cmd.Verb {
	case wire.VerbList:
		path := "."
		if cmd.HasPath {
			path = cmd.Path
		}
		return r.list(path)
	case wire.VerbDownload:
		return r.download(cmd.Path)
	default:
		return wire.WriteTextResponse(r.w, wire.MsgInvalidCommand)
	}
}

func (r *Responder) list(path string) error {
	if !r.fs.IsDir(path) {
		return wire.WriteTextResponse(r.w, wire.MsgDirectoryNotFound)
	}

	items, err := r.fs.List(path)
	if err != nil {
		r.logger.Warn("failed to list directory", zap.String("path", path), zap.Error(err))
		return wire.WriteTextResponse(r.w, wire.MsgDirectoryNotFound)
	}

	return wire.WriteTextResponse(r.w, wire.ListingLines(transport.Entries(items), true)...)
}

type bundleFile struct {
	name string
	size int64
}

// download sends every regular file directly inside path. Files are opened once
// up front so unreadable ones are left out before any length is declared.
func (r *Responder) download(path string) error {
	if !r.fs.IsDir(path) {
		return wire.WriteTextResponse(r.w, wire.MsgDirectoryNotFound)
	}

	// the filesystem root has no name a client could create
	name := r.fs.BaseName(path)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return wire.WriteTextResponse(r.w, wire.MsgDirectoryNotFound)
	}

	items, err := r.fs.List(path)
	if err != nil {
		r.logger.Warn("failed to list directory", zap.String("path", path), zap.Error(err))
		return wire.WriteTextResponse(r.w, wire.MsgDirectoryNotFound)
	}

	var files []bundleFile
	for _, item := range items {
		if item.IsDir {
			continue
		}

		f, size, err := r.fs.Open(filepath.Join(path, item.Name))
		if err != nil {
			r.logger.Warn("skipping unreadable file", zap.String("file", item.Name), zap.Error(err))
			continue
		}
		f.Close()
		files = append(files, bundleFile{name: item.Name, size: size})
	}

	if err := wire.WriteBinaryFlag(r.w); err != nil {
		return err
	}

	bw := wire.NewBundleWriter(r.w)
	if err := bw.WriteHeader(name, len(files)); err != nil {
		return err
	}

	var total int64
	for _, file := range files {
		if err := r.sendFile(bw, filepath.Join(path, file.name), file); err != nil {
			return err
		}
		total += file.size
	}

	r.logger.Info("sent directory",
		zap.String("dir", name),
		zap.Int("files", len(files)),
		zap.String("size", humanize.Bytes(uint64(total))),
	)
	return nil
}

func (r *Responder) sendFile(bw *wire.BundleWriter, path string, file bundleFile) error {
	f, _, err := r.fs.Open(path)
	if err != nil {
		metrics.RecordBundleAborted()
		return fmt.Errorf("%w: %s: %v", ErrBundleAborted, file.name, err)
	}
	defer f.Close()

	err = bw.WriteFile(file.name, file.size, f)
	if errors.Is(err, wire.ErrTruncated) {
		metrics.RecordBundleAborted()
		return fmt.Errorf("%w: %v", ErrBundleAborted, err)
	} else if err != nil {
		return err
	}

	metrics.RecordBundleFile(file.size)
	r.stats.fileSent(file.size)
	return nil
}

func (r *Responder) record(command string) {
	err := r.log.Record(Entry{Peer: r.peer, Command: command})
	if err != nil {
		r.logger.Error("failed to write request log", zap.Error(err))
	}
}

func (r *Responder) close() {
	r.record("exit")
	if err := r.conn.Close(); err != nil {
		r.logger.Warn("error closing client connection", zap.Error(err))
		return
	}
	r.logger.Info("connection closed")
}
