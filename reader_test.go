package dirpull

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/b1naryth1ef/dirpull/transport"
	"github.com/b1naryth1ef/dirpull/wire"
)

func encodedDocs(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteByte(wire.FlagBinary)
	err := wire.EncodeBundle(&buf, &wire.Bundle{
		Name: "docs",
		Files: []wire.BundleFile{
			{Name: "a.txt", Data: []byte("abc")},
			{Name: "b.txt", Data: []byte{}},
		},
	})
	if err != nil {
		t.Fatalf("EncodeBundle: %v", err)
	}
	return buf.Bytes()
}

func TestReader_TextResponse(t *testing.T) {
	var stream, out bytes.Buffer
	wire.WriteTextResponse(&stream, "Directory: img", "File: a.txt")

	rd := NewReader(&stream, transport.NewLocalFilesystem(t.TempDir()), &out)
	if err := rd.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if out.String() != "Directory: img\nFile: a.txt\n\n" {
		t.Errorf("unexpected output %q", out.String())
	}
	if err := rd.Run(); !errors.Is(err, io.EOF) {
		t.Errorf("Run at end of stream: got %v, want io.EOF", err)
	}
}

func TestReader_ReceiveDirectory(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	rd := NewReader(bytes.NewReader(encodedDocs(t)), transport.NewLocalFilesystem(dir), &out)
	if err := rd.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if got := readFile(t, filepath.Join(dir, "docs", "a.txt")); got != "abc" {
		t.Errorf("a.txt: got %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "docs", "b.txt")); got != "" {
		t.Errorf("b.txt: got %q", got)
	}

	for _, want := range []string{"1/2 files downloaded\n", "2/2 files downloaded\n", "docs downloaded!"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestReader_ReceiveIntoExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"docs/a.txt": "old contents", "docs/keep.txt": "k"})

	rd := NewReader(bytes.NewReader(encodedDocs(t)), transport.NewLocalFilesystem(dir), io.Discard)
	if err := rd.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "docs", "a.txt")); got != "abc" {
		t.Errorf("a.txt not replaced: %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "docs", "keep.txt")); got != "k" {
		t.Errorf("unrelated file changed: %q", got)
	}
}

func TestReader_TruncatedBundleIsFatal(t *testing.T) {
	full := encodedDocs(t)
	// cut inside the content of a.txt
	cut := 1 + 6 + 4 + 8 + 7 + 2

	dir := t.TempDir()
	rd := NewReader(bytes.NewReader(full[:cut]), transport.NewLocalFilesystem(dir), io.Discard)
	err := rd.Next()
	if !errors.Is(err, wire.ErrTruncated) {
		t.Fatalf("got %v, want ErrTruncated", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "docs", "a.txt")); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}
}

func TestReader_MaxFileSize(t *testing.T) {
	rd := NewReader(bytes.NewReader(encodedDocs(t)), transport.NewLocalFilesystem(t.TempDir()), io.Discard)
	rd.MaxFileSize = 2
	if err := rd.Next(); !errors.Is(err, wire.ErrTooLarge) {
		t.Errorf("got %v, want ErrTooLarge", err)
	}
}

func TestReader_RejectsEscapingNames(t *testing.T) {
	bundles := []*wire.Bundle{
		{Name: "../evil"},
		{Name: "/abs"},
		{Name: ""},
		{Name: "ok", Files: []wire.BundleFile{{Name: "../x", Data: []byte("1")}}},
		{Name: "ok", Files: []wire.BundleFile{{Name: "a/b", Data: []byte("1")}}},
	}

	for _, bundle := range bundles {
		var stream bytes.Buffer
		stream.WriteByte(wire.FlagBinary)
		if err := wire.EncodeBundle(&stream, bundle); err != nil {
			t.Fatalf("EncodeBundle: %v", err)
		}

		dir := t.TempDir()
		rd := NewReader(&stream, transport.NewLocalFilesystem(dir), io.Discard)
		if err := rd.Next(); !errors.Is(err, wire.ErrMalformed) {
			t.Errorf("%+v: got %v, want ErrMalformed", bundle, err)
		}
	}
}

func TestReader_UnknownFlag(t *testing.T) {
	rd := NewReader(bytes.NewReader([]byte{2}), transport.NewLocalFilesystem(t.TempDir()), io.Discard)
	if err := rd.Next(); !errors.Is(err, wire.ErrUnknownFlag) {
		t.Errorf("got %v, want ErrUnknownFlag", err)
	}
}

func TestReader_MixedStream(t *testing.T) {
	var stream bytes.Buffer
	wire.WriteTextResponse(&stream, wire.MsgInvalidCommand)
	stream.Write(encodedDocs(t))
	wire.WriteTextResponse(&stream, wire.MsgDirectoryNotFound)

	dir := t.TempDir()
	var out bytes.Buffer
	rd := NewReader(&stream, transport.NewLocalFilesystem(dir), &out)
	if err := rd.Run(); !errors.Is(err, io.EOF) {
		t.Fatalf("Run: got %v, want io.EOF", err)
	}

	text := out.String()
	first := strings.Index(text, wire.MsgInvalidCommand)
	middle := strings.Index(text, "docs downloaded!")
	last := strings.Index(text, wire.MsgDirectoryNotFound)
	if first < 0 || middle < first || last < middle {
		t.Errorf("responses out of order:\n%s", text)
	}
	if got := readFile(t, filepath.Join(dir, "docs", "a.txt")); got != "abc" {
		t.Errorf("a.txt: got %q", got)
	}
}
