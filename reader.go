package dirpull

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/b1naryth1ef/dirpull/transport"
	"github.com/b1naryth1ef/dirpull/wire"
	"github.com/dustin/go-humanize"
)

// Reader consumes framed responses on the client side, printing text bodies and
// saving bundles under its filesystem.
type Reader struct {
	// MaxFileSize rejects bundles declaring a larger file. Zero means no limit.
	MaxFileSize int64

	r   *bufio.Reader
	fs  transport.Filesystem
	out io.Writer
}

func NewReader(r io.Reader, fs transport.Filesystem, out io.Writer) *Reader {
	return &Reader{
		r:   bufio.NewReader(r),
		fs:  fs,
		out: out,
	}
}

// Run handles responses until the stream fails. A clean end of stream between
// responses is returned as io.EOF; anything else is fatal to the session.
func (rd *Reader) Run() error {
	for {
		if err := rd.Next(); err != nil {
			return err
		}
	}
}

// Next reads and handles exactly one response.
func (rd *Reader) Next() error {
	resp, err := wire.ReadResponse(rd.r, rd.MaxFileSize)
	if err != nil {
		return err
	}

	switch resp := resp.(type) {
	case *wire.TextResponse:
		for _, line := range resp.Lines {
			fmt.Fprintln(rd.out, line)
		}
		fmt.Fprintln(rd.out)
		return nil
	case *wire.BinaryResponse:
		return rd.receiveDirectory(resp.Bundle)
	default:
		return fmt.Errorf("%w: %T", wire.ErrUnknownFlag, resp)
	}
}

func (rd *Reader) receiveDirectory(bundle *wire.BundleReader) error {
	name, count, err := bundle.ReadHeader()
	if err != nil {
		return err
	}

	dir, err := localDirName(name)
	if err != nil {
		return err
	}
	if err := rd.fs.MkdirAll(dir); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	var total int64
	for i := 0; ; i++ {
		hdr, content, err := bundle.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}

		if !validFileName(hdr.Name) {
			return fmt.Errorf("%w: file name %q", wire.ErrMalformed, hdr.Name)
		}

		saved, err := rd.saveFile(filepath.Join(dir, hdr.Name), content)
		if err != nil {
			return err
		}
		if !saved {
			fmt.Fprintf(rd.out, "%d/%d files downloaded (%s skipped)\n", i+1, count, hdr.Name)
			continue
		}

		total += hdr.Size
		fmt.Fprintf(rd.out, "%d/%d files downloaded\n", i+1, count)
	}

	fmt.Fprintf(rd.out, "\n%s downloaded! (%s)\n\n", name, humanize.Bytes(uint64(total)))
	return nil
}

// saveFile writes content to path. A local failure to create or write the file
// still consumes the content so the stream stays framed; a short stream removes
// the partial file and is returned as an error.
func (rd *Reader) saveFile(path string, content io.Reader) (bool, error) {
	w, err := rd.fs.Create(path)
	if err != nil {
		fmt.Fprintf(rd.out, "failed to create %s: %v\n", path, err)
		_, err := io.Copy(io.Discard, content)
		return false, err
	}

	_, copyErr := io.Copy(w, content)
	closeErr := w.Close()
	if copyErr == nil && closeErr == nil {
		return true, nil
	}

	rd.fs.Remove(path)
	if errors.Is(copyErr, wire.ErrTruncated) || errors.Is(copyErr, io.ErrUnexpectedEOF) {
		return false, fmt.Errorf("%s: %w", path, copyErr)
	}

	// the local write failed; the rest of this file still has to be read off the wire
	fmt.Fprintf(rd.out, "failed to write %s: %v\n", path, errors.Join(copyErr, closeErr))
	_, err = io.Copy(io.Discard, content)
	return false, err
}

// localDirName validates a bundle directory name before it is created locally.
func localDirName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty directory name", wire.ErrMalformed)
	}
	dir := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(dir) || dir == ".." || strings.HasPrefix(dir, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: directory name %q", wire.ErrMalformed, name)
	}
	return dir, nil
}

func validFileName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
