package transport

import (
	"io"
	"os"
	"time"

	"github.com/b1naryth1ef/dirpull/wire"
)

// Filesystem is everything the responder and reader need from the host: a
// non-recursive listing, directory checks and scoped file streams.
type Filesystem interface {
	List(path string) ([]DirEntry, error)
	IsDir(path string) bool
	BaseName(path string) string
	Open(path string) (io.ReadCloser, int64, error)
	Create(path string) (io.WriteCloser, error)
	MkdirAll(path string) error
	Remove(path string) error
}

type DirEntry struct {
	IsDir   bool
	Name    string
	Mode    os.FileMode
	Size    int64
	ModTime time.Time
}

func (d DirEntry) Kind() wire.Kind {
	if d.IsDir {
		return wire.KindDirectory
	}
	return wire.KindFile
}

// Entries converts a listing to its wire form.
func Entries(items []DirEntry) []wire.Entry {
	entries := make([]wire.Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, wire.Entry{Name: item.Name, Kind: item.Kind()})
	}
	return entries
}
