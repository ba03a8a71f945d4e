package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Bundle layout, all integers big-endian:
//
//	name (u16 len + bytes) | count (i32) | { size (i64) | name (u16 len + bytes) | size bytes }*
//
// There are no separators; every length is declared before the bytes it covers.

type FileHeader struct {
	Name string
	Size int64
}

// BundleWriter streams one directory bundle to w.
type BundleWriter struct {
	w       io.Writer
	pending int
	started bool
}

func NewBundleWriter(w io.Writer) *BundleWriter {
	return &BundleWriter{w: w}
}

func (b *BundleWriter) WriteHeader(name string, count int) error {
	if b.started {
		return fmt.Errorf("%w: header already written", ErrMalformed)
	}
	if count < 0 || count > math.MaxInt32 {
		return fmt.Errorf("%w: file count %d", ErrMalformed, count)
	}
	if err := writeString(b.w, name); err != nil {
		return err
	}

	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(count))
	if _, err := b.w.Write(tmp[:]); err != nil {
		return err
	}

	b.started = true
	b.pending = count
	return nil
}

// WriteFile writes one file header followed by exactly size bytes from r. If r
// yields fewer bytes the bundle is broken and the returned error wraps ErrTruncated;
// callers must then abandon the stream.
func (b *BundleWriter) WriteFile(name string, size int64, r io.Reader) error {
	if !b.started {
		return fmt.Errorf("%w: file before header", ErrMalformed)
	}
	if b.pending == 0 {
		return fmt.Errorf("%w: more files than declared", ErrMalformed)
	}
	if size < 0 {
		return fmt.Errorf("%w: negative size for %s", ErrMalformed, name)
	}
	if len(name) > MaxStringLen {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(name))
	}

	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(size))
	if _, err := b.w.Write(tmp[:]); err != nil {
		return err
	}
	if err := writeString(b.w, name); err != nil {
		return err
	}

	n, err := io.CopyN(b.w, r, size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: wrote %d of %d bytes: %w", name, n, size, ErrTruncated)
		}
		return err
	}

	b.pending--
	return nil
}

// Pending is the number of declared files not yet written.
func (b *BundleWriter) Pending() int {
	return b.pending
}

// BundleReader decodes one bundle from r, reading exactly the declared byte counts.
type BundleReader struct {
	// MaxFileSize rejects any declared file size above it. Zero means no limit.
	MaxFileSize int64

	r     io.Reader
	count int
	index int
	cur   *io.LimitedReader
}

func NewBundleReader(r io.Reader) *BundleReader {
	return &BundleReader{r: r}
}

// ReadHeader reads the directory name and file count.
func (b *BundleReader) ReadHeader() (string, int, error) {
	name, err := readString(b.r)
	if err != nil {
		return "", 0, fmt.Errorf("bundle name: %w", err)
	}

	var tmp [4]byte
	if _, err := io.ReadFull(b.r, tmp[:]); err != nil {
		return "", 0, fmt.Errorf("bundle file count: %w", shortRead(err))
	}
	count := int32(binary.BigEndian.Uint32(tmp[:]))
	if count < 0 {
		return "", 0, fmt.Errorf("%w: negative file count %d", ErrMalformed, count)
	}

	b.count = int(count)
	return name, b.count, nil
}

// Next returns the next file header and a reader over exactly its content. Any
// unread content of the previous file is drained first. After the last file Next
// returns io.EOF.
func (b *BundleReader) Next() (FileHeader, io.Reader, error) {
	if b.cur != nil && b.cur.N > 0 {
		if _, err := io.Copy(io.Discard, &exactReader{b.cur}); err != nil {
			return FileHeader{}, nil, err
		}
	}
	b.cur = nil

	if b.index >= b.count {
		return FileHeader{}, nil, io.EOF
	}

	var tmp [8]byte
	if _, err := io.ReadFull(b.r, tmp[:]); err != nil {
		return FileHeader{}, nil, fmt.Errorf("file %d size: %w", b.index+1, shortRead(err))
	}
	size := int64(binary.BigEndian.Uint64(tmp[:]))
	if size < 0 {
		return FileHeader{}, nil, fmt.Errorf("%w: negative size for file %d", ErrMalformed, b.index+1)
	}
	if b.MaxFileSize > 0 && size > b.MaxFileSize {
		return FileHeader{}, nil, fmt.Errorf("file %d declares %d bytes: %w", b.index+1, size, ErrTooLarge)
	}

	name, err := readString(b.r)
	if err != nil {
		return FileHeader{}, nil, fmt.Errorf("file %d name: %w", b.index+1, err)
	}

	b.index++
	b.cur = &io.LimitedReader{R: b.r, N: size}
	return FileHeader{Name: name, Size: size}, &exactReader{b.cur}, nil
}

// exactReader turns an early end of the underlying stream into ErrTruncated.
type exactReader struct {
	lr *io.LimitedReader
}

func (e *exactReader) Read(p []byte) (int, error) {
	n, err := e.lr.Read(p)
	if errors.Is(err, io.EOF) && e.lr.N > 0 {
		return n, ErrTruncated
	}
	return n, err
}

// BundleFile and Bundle are the in-memory form of a bundle.
type BundleFile struct {
	Name string
	Data []byte
}

type Bundle struct {
	Name  string
	Files []BundleFile
}

func EncodeBundle(w io.Writer, bundle *Bundle) error {
	bw := NewBundleWriter(w)
	if err := bw.WriteHeader(bundle.Name, len(bundle.Files)); err != nil {
		return err
	}
	for _, f := range bundle.Files {
		if err := bw.WriteFile(f.Name, int64(len(f.Data)), bytes.NewReader(f.Data)); err != nil {
			return err
		}
	}
	return nil
}

func DecodeBundle(r io.Reader) (*Bundle, error) {
	br := NewBundleReader(r)
	name, count, err := br.ReadHeader()
	if err != nil {
		return nil, err
	}

	// declared counts and sizes are untrusted; memory grows with bytes received
	bundle := &Bundle{Name: name, Files: make([]BundleFile, 0, min(count, 64))}
	for {
		hdr, content, err := br.Next()
		if errors.Is(err, io.EOF) {
			return bundle, nil
		} else if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", hdr.Name, err)
		}
		bundle.Files = append(bundle.Files, BundleFile{Name: hdr.Name, Data: data})
	}
}

func writeString(w io.Writer, s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	buf := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	_, err := w.Write(buf)
	return err
}

func readString(r io.Reader) (string, error) {
	var tmp [2]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return "", shortRead(err)
	}
	buf := make([]byte, binary.BigEndian.Uint16(tmp[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", shortRead(err)
	}
	return string(buf), nil
}

// shortRead maps an early end of stream inside a bundle to ErrTruncated and leaves
// transport errors alone.
func shortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
