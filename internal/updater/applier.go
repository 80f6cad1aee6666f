// Package updater applies update archives to the target directory.
//
// Every file the archive replaces is first moved into the batch's backup
// folder. If that move cannot be made the batch stops, so an existing file is
// never overwritten without a copy of its previous bytes.
package updater

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/blackwell-systems/autoupdater/internal/archive"
	"github.com/blackwell-systems/autoupdater/internal/layout"
	"github.com/blackwell-systems/autoupdater/internal/logger"
)

var (
	// ErrArchiveUnreadable means the file could not be opened or is not a valid archive.
	ErrArchiveUnreadable = errors.New("archive unreadable")

	// ErrBackupDirUnavailable means the batch backup folder could not be created.
	ErrBackupDirUnavailable = errors.New("backup folder unavailable")

	// ErrBackupMoveFailed means an existing target file could not be moved to the backup folder.
	ErrBackupMoveFailed = errors.New("backup move failed")

	// ErrContentWriteFailed means an entry could not be written to the target.
	ErrContentWriteFailed = errors.New("content write failed")

	// ErrEntryUnreadable means an archive member could not be read.
	ErrEntryUnreadable = errors.New("archive entry unreadable")

	// ErrUnsafeEntryPath means an entry would be written outside the target directory.
	ErrUnsafeEntryPath = errors.New("unsafe entry path")
)

// BackedUpFile records one file moved out of the target.
type BackedUpFile struct {
	// RelativePath is the entry name, with forward slashes.
	RelativePath string
	BackupPath   string
}

// Result describes how far an archive got.
type Result struct {
	Applied  int
	Total    int
	BackedUp []BackedUpFile
}

// Complete reports whether every entry was applied.
func (r Result) Complete() bool {
	return r.Applied == r.Total
}

// Applier extracts archives over a target directory.
type Applier struct {
	fs     afero.Fs
	opener archive.Opener
	log    zerolog.Logger
}

// NewApplier creates an applier writing through fs and reading archives with opener.
func NewApplier(fs afero.Fs, opener archive.Opener, log zerolog.Logger) *Applier {
	return &Applier{fs: fs, opener: opener, log: log}
}

// Check opens and closes the archive without extracting anything.
func (a *Applier) Check(archivePath string) error {
	r, err := a.opener.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveUnreadable, err)
	}
	return r.Close()
}

// Apply extracts archivePath over targetDir, moving replaced files into
// batchBackupDir first. Entries are processed in container order.
//
// ErrArchiveUnreadable and ErrBackupDirUnavailable are returned before any
// target file is touched. Any other error stops the remaining entries; the
// returned Result still counts what was applied before it.
func (a *Applier) Apply(archivePath, targetDir, batchBackupDir string) (Result, error) {
	r, err := a.opener.Open(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrArchiveUnreadable, err)
	}
	defer r.Close()

	entries := r.Entries()
	res := Result{Total: len(entries)}

	if _, err := layout.MkdirIfAbsent(a.fs, batchBackupDir); err != nil {
		logger.Warning(a.log).Msgf("Unable to create folder %s", batchBackupDir)
		return res, fmt.Errorf("%w: %s: %v", ErrBackupDirUnavailable, batchBackupDir, err)
	}

	for _, entry := range entries {
		rel, err := localPath(entry.Name)
		if err != nil {
			logger.Warning(a.log).Str("archive", archivePath).Msgf("Refusing entry %s outside the target directory", entry.Name)
			return res, err
		}

		if entry.IsDir {
			if a.applyDir(rel, targetDir, batchBackupDir) {
				res.Applied++
			}
			continue
		}

		saved, err := a.applyFile(entry, rel, targetDir, batchBackupDir)
		if saved != nil {
			res.BackedUp = append(res.BackedUp, *saved)
		}
		if err != nil {
			return res, err
		}
		res.Applied++
	}

	return res, nil
}

// applyDir creates a directory entry under the target. When the directory
// already exists its mirror is created in the backup folder. Failures are
// logged and the entry is skipped.
func (a *Applier) applyDir(rel, targetDir, backupDir string) bool {
	target := filepath.Join(targetDir, rel)

	info, err := a.fs.Stat(target)
	switch {
	case err == nil && info.IsDir():
		mirror := filepath.Join(backupDir, rel)
		if err := a.fs.MkdirAll(mirror, 0755); err != nil {
			logger.Warning(a.log).Err(err).Msgf("Unable to create folder in backup directory %s", mirror)
		}
		return true
	case err == nil:
		logger.Warning(a.log).Msgf("Unable to create folder in target directory %s: a file is in the way", target)
		return false
	}

	if err := a.fs.MkdirAll(target, 0755); err != nil {
		logger.Warning(a.log).Err(err).Msgf("Unable to create folder in target directory %s", target)
		return false
	}
	return true
}

// applyFile backs up the existing target file, if any, then writes the entry.
// The returned BackedUpFile is non-nil once the original has been moved, even
// if the write that follows fails.
func (a *Applier) applyFile(entry archive.Entry, rel, targetDir, backupDir string) (*BackedUpFile, error) {
	target := filepath.Join(targetDir, rel)
	backup := filepath.Join(backupDir, rel)

	src, err := entry.Open()
	if err != nil {
		logger.Warning(a.log).Err(err).Msg("Unable to open item inside the archive")
		return nil, fmt.Errorf("%w: %s: %v", ErrEntryUnreadable, entry.Name, err)
	}
	defer src.Close()

	var saved *BackedUpFile
	info, err := a.fs.Stat(target)
	switch {
	case err == nil && info.IsDir():
		logger.Warning(a.log).Msgf("Unable to transfer file from archive to %s: a directory is in the way", target)
		return nil, fmt.Errorf("%w: %s is a directory", ErrContentWriteFailed, target)

	case err == nil:
		if err := a.moveToBackup(target, backup); err != nil {
			logger.Warning(a.log).Err(err).Msgf("Unable to move the file %s inside the backup folder", target)
			return nil, fmt.Errorf("%w: %s: %v", ErrBackupMoveFailed, target, err)
		}
		saved = &BackedUpFile{RelativePath: filepath.ToSlash(rel), BackupPath: backup}

	case os.IsNotExist(err):
		logger.Warning(a.log).Msgf("File %s does not exist", target)
		if err := a.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
			logger.Warning(a.log).Err(err).Msgf("Unable to create folder in target directory %s", filepath.Dir(target))
			return nil, fmt.Errorf("%w: %s: %v", ErrContentWriteFailed, target, err)
		}

	default:
		// Existence is unknown, so the original cannot be proven safe.
		logger.Warning(a.log).Err(err).Msgf("Unable to move the file %s inside the backup folder", target)
		return nil, fmt.Errorf("%w: %s: %v", ErrBackupMoveFailed, target, err)
	}

	if err := a.writeFile(target, src); err != nil {
		logger.Warning(a.log).Err(err).Msgf("Unable to transfer file from archive to %s", target)
		return saved, fmt.Errorf("%w: %s: %v", ErrContentWriteFailed, target, err)
	}
	return saved, nil
}

// moveToBackup renames target to backup. An existing backup is never replaced.
func (a *Applier) moveToBackup(target, backup string) error {
	if _, err := a.fs.Stat(backup); err == nil {
		return fmt.Errorf("backup %s already exists", backup)
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := a.fs.MkdirAll(filepath.Dir(backup), 0755); err != nil {
		return err
	}
	return a.fs.Rename(target, backup)
}

func (a *Applier) writeFile(target string, src io.Reader) error {
	f, err := a.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// localPath converts an entry name to a platform relative path, refusing
// names that are absolute or climb out of the target.
func localPath(name string) (string, error) {
	clean := path.Clean(strings.TrimSuffix(name, "/"))
	rel := filepath.FromSlash(clean)
	if clean == "." || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntryPath, name)
	}
	return rel, nil
}
