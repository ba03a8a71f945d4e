package transport

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// LocalFilesystem serves paths from the local disk. With an empty Root paths are
// used exactly as given, relative to the working directory.
type LocalFilesystem struct {
	Root string
}

func NewLocalFilesystem(root string) *LocalFilesystem {
	return &LocalFilesystem{Root: root}
}

// resolve maps path under Root. Cleaning against "/" first keeps ".." from
// climbing above it.
func (l *LocalFilesystem) resolve(path string) string {
	if l.Root == "" {
		return path
	}
	return filepath.Join(l.Root, filepath.Clean(string(filepath.Separator)+path))
}

// List returns the immediate children of path, directories first and then regular
// files, each group sorted by name. Anything else is left out.
func (l *LocalFilesystem) List(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(l.resolve(path))
	if err != nil {
		return nil, err
	}

	var dirs, files []DirEntry
	for _, entry := range entries {
		// follow symlinks so a linked directory lists as a directory
		info, err := os.Stat(filepath.Join(l.resolve(path), entry.Name()))
		if err != nil {
			continue
		}

		item := DirEntry{
			IsDir:   info.IsDir(),
			Name:    entry.Name(),
			Mode:    info.Mode(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		}
		if info.IsDir() {
			dirs = append(dirs, item)
		} else if info.Mode().IsRegular() {
			files = append(files, item)
		}
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(dirs, files...), nil
}

func (l *LocalFilesystem) IsDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(l.resolve(path))
	return err == nil && info.IsDir()
}

// BaseName is the last element of the directory path resolves to, so "..", "."
// and "/" under a Root name the real directory.
func (l *LocalFilesystem) BaseName(path string) string {
	resolved := l.resolve(path)
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	return filepath.Base(resolved)
}

// Open returns the file and its size at open time.
func (l *LocalFilesystem) Open(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(l.resolve(path))
	if err != nil {
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is not a regular file", path)
	}
	return f, info.Size(), nil
}

func (l *LocalFilesystem) Create(path string) (io.WriteCloser, error) {
	return os.Create(l.resolve(path))
}

func (l *LocalFilesystem) MkdirAll(path string) error {
	return os.MkdirAll(l.resolve(path), 0755)
}

func (l *LocalFilesystem) Remove(path string) error {
	return os.Remove(l.resolve(path))
}
