package updater

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/autoupdater/internal/layout"
)

// Lifecycle moves processed archives out of staging.
type Lifecycle struct {
	fs     afero.Fs
	layout layout.Layout
}

// NewLifecycle creates a Lifecycle for the given layout.
func NewLifecycle(fs afero.Fs, l layout.Layout) *Lifecycle {
	return &Lifecycle{fs: fs, layout: l}
}

// Archive moves an applied archive into its history folder and returns the
// new path. On error the archive is left where it was.
func (lc *Lifecycle) Archive(b Batch) (string, error) {
	return lc.move(b.ArchivePath, lc.layout.HistoryFolder(b.Stamp))
}

// Quarantine moves an unreadable archive into its error folder and returns the
// new path. On error the archive is left where it was.
func (lc *Lifecycle) Quarantine(b Batch) (string, error) {
	return lc.move(b.ArchivePath, lc.layout.QuarantineFolder(b.Stamp))
}

func (lc *Lifecycle) move(src, folder string) (string, error) {
	if _, err := layout.MkdirIfAbsent(lc.fs, folder); err != nil {
		return "", fmt.Errorf("unable to create folder %s: %w", folder, err)
	}

	dest := filepath.Join(folder, filepath.Base(src))
	if _, err := lc.fs.Stat(dest); err == nil {
		return "", fmt.Errorf("unable to move archive %s: %s already exists", src, dest)
	}
	if err := lc.fs.Rename(src, dest); err != nil {
		return "", fmt.Errorf("unable to move archive %s: %w", src, err)
	}
	return dest, nil
}
