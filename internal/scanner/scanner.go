// Package scanner finds update archives waiting in the staging directory.
package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Scanner walks a staging directory for archives.
type Scanner struct {
	fs   afero.Fs
	root string
	ext  string
}

// New creates a Scanner over root matching files whose name ends in ext
// (case-sensitive, including the dot). ext may span several dots, as in
// ".tar.gz".
func New(fs afero.Fs, root, ext string) *Scanner {
	return &Scanner{fs: fs, root: root, ext: ext}
}

// Root returns the directory being scanned.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the staging tree once and returns the archives found. Each call
// starts a new walk. Entries that cannot be read are skipped; only a failure
// to read the root itself is returned.
func (s *Scanner) Scan() ([]string, error) {
	var archives []string

	err := afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			// Vanished or unreadable entry; the next cycle will see it again.
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		if s.Matches(path) {
			archives = append(archives, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return archives, nil
}

// Matches reports whether path carries the archive extension. A name that is
// nothing but the extension does not match.
func (s *Scanner) Matches(path string) bool {
	name := filepath.Base(path)
	return len(name) > len(s.ext) && strings.HasSuffix(name, s.ext)
}
