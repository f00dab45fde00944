package walk

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// Entry is a handle for a single file to be scanned
type Entry interface {
	Path() string
	Open() (io.ReadCloser, error)
	Stat() (fs.FileInfo, error)
}

// Paths returns an Entry for each path, in order. Nothing is checked upfront:
// a missing or unreadable path fails on Stat or Open, so the caller can report
// it as a part of the scan.
func Paths(ctx context.Context, paths ...string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, path := range paths {
			if ctx.Err() != nil {
				return
			}
			if !yield(fileEntry{path: path}, nil) {
				return
			}
		}
	}
}

// fileEntry implements Entry for a path on the local filesystem
type fileEntry struct {
	path string
}

func (e fileEntry) Path() string {
	return e.path
}

func (e fileEntry) Open() (io.ReadCloser, error) {
	return os.Open(e.path)
}

func (e fileEntry) Stat() (fs.FileInfo, error) {
	return os.Stat(e.path)
}

// Roots is a convenience wrapper around FS for os.Root. See FS for details.
func Roots(ctx context.Context, skip SkipFunc, roots ...*os.Root) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, root := range roots {
			for entry, err := range FS(ctx, root.FS(), root.Name(), skip) {
				if !yield(entry, err) {
					return
				}
			}
		}
	}
}

// SkipFunc reports if the file or directory at the slash separated path
// relative to the walked root should be left out. A skipped directory is not
// descended into.
type SkipFunc func(path string, isDir bool) bool

// FS recursively walks the filesystem rooted at root and return a handle for every regular file found.
// Or an error if file information retrieval fails.
// Each Entry's Path() is prefixed with name of a filesystem. It does not
// follow symlinks. skip may be nil.
func FS(ctx context.Context, root fs.FS, name string, skip SkipFunc) iter.Seq2[Entry, error] {
	if root == nil {
		panic("root is nil")
	}

	return func(yield func(Entry, error) bool) {
		fn := func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			if skip != nil && path != "." && d != nil && skip(path, d.IsDir()) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			var entry = fsEntry{
				root:    root,
				abspath: filepath.Join(name, filepath.FromSlash(path)),
				path:    path,
			}
			var yieldErr error
			if err != nil {
				yieldErr = err
			} else {
				info, err := d.Info()
				if err != nil {
					entry.infoErr = err
					yieldErr = err
				} else {
					if !info.Mode().IsRegular() {
						return nil
					}
					entry.info = info
					yieldErr = nil
				}
			}

			if !yield(entry, yieldErr) {
				return fs.SkipAll
			}
			return nil
		}
		_ = fs.WalkDir(root, ".", fn)
	}
}

// fsEntry implements Entry for a filesystem
// it uses root.Open to open the file
type fsEntry struct {
	root    fs.FS
	abspath string
	path    string
	info    fs.FileInfo
	infoErr error
}

// returns the path to the file prefixed by the name of the filesystem
func (e fsEntry) Path() string {
	return e.abspath
}

func (e fsEntry) Open() (io.ReadCloser, error) {
	if e.infoErr != nil {
		return nil, e.infoErr
	}
	return e.root.Open(e.path)
}

func (e fsEntry) Stat() (fs.FileInfo, error) {
	return e.info, e.infoErr
}
