// Package archive exposes update packages as an ordered list of named entries.
//
// Only the zip container is supported. Callers depend on the Opener and Reader
// interfaces so the update algorithm can run against synthetic archives.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// Entry is one member of an archive. Name uses forward slashes; directory
// entries end with "/".
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
	open  func() (io.ReadCloser, error)
}

// NewEntry builds an entry backed by open. Directory-ness follows the name.
func NewEntry(name string, size int64, open func() (io.ReadCloser, error)) Entry {
	return Entry{
		Name:  name,
		IsDir: strings.HasSuffix(name, "/"),
		Size:  size,
		open:  open,
	}
}

// Open returns the entry's content stream.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.IsDir {
		return nil, fmt.Errorf("%s is a directory entry", e.Name)
	}
	if e.open == nil {
		return nil, fmt.Errorf("%s has no content", e.Name)
	}
	return e.open()
}

// Reader is an opened archive.
type Reader interface {
	// Entries returns the members in the order the container stores them.
	Entries() []Entry
	Close() error
}

// Opener opens archives by path.
type Opener interface {
	Open(path string) (Reader, error)
}

// ZipOpener reads zip files from an afero filesystem.
type ZipOpener struct {
	fs afero.Fs
}

// NewZipOpener creates a ZipOpener over fs.
func NewZipOpener(fs afero.Fs) *ZipOpener {
	return &ZipOpener{fs: fs}
}

// Open opens path and parses its central directory. Both a missing file and a
// malformed container are reported as errors; nothing is extracted.
func (o *ZipOpener) Open(path string) (Reader, error) {
	f, err := o.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to stat file %s: %w", path, err)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to open zip file %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, zf := range zr.File {
		entries = append(entries, NewEntry(zf.Name, int64(zf.UncompressedSize64), zf.Open))
	}

	return &zipReader{file: f, entries: entries}, nil
}

type zipReader struct {
	file    afero.File
	entries []Entry
}

func (r *zipReader) Entries() []Entry {
	return r.entries
}

func (r *zipReader) Close() error {
	return r.file.Close()
}
