// Package layout derives the updater's working directories from the three
// configured roots and creates them.
//
//	update_dir/__auto_updater/                         archives are dropped here
//	update_dir/__auto_updater_history/<stamp>/<zip>    processed archives
//	backup_dir/__auto_updater_error/<stamp>/<zip>      unreadable archives
//	backup_dir/<stamp>/<relative path>                 overwritten files
//
// The names are fixed so existing deployments keep working.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/autoupdater/internal/config"
)

// Fixed directory names.
const (
	StagingDirName = "__auto_updater"
	HistoryDirName = "__auto_updater_history"
	ErrorDirName   = "__auto_updater_error"
)

// Layout holds the derived paths. All paths are cleaned; joining is done with
// filepath.Join so a trailing separator on the configured roots is irrelevant.
type Layout struct {
	TargetDir  string
	StagingDir string
	HistoryDir string
	BackupRoot string
	ErrorDir   string
}

// New derives the layout from the three roots.
func New(targetDir, updateDir, backupDir string) Layout {
	updateDir = filepath.Clean(updateDir)
	backupDir = filepath.Clean(backupDir)
	return Layout{
		TargetDir:  filepath.Clean(targetDir),
		StagingDir: filepath.Join(updateDir, StagingDirName),
		HistoryDir: filepath.Join(updateDir, HistoryDirName),
		BackupRoot: backupDir,
		ErrorDir:   filepath.Join(backupDir, ErrorDirName),
	}
}

// FromConfig derives the layout from a loaded configuration.
func FromConfig(cfg *config.Config) Layout {
	return New(cfg.TargetDir, cfg.UpdateDir, cfg.BackupDir)
}

// Dirs returns the working directories Ensure creates, in creation order.
func (l Layout) Dirs() []string {
	return []string{l.StagingDir, l.HistoryDir, l.BackupRoot, l.ErrorDir}
}

// Ensure creates every working directory that does not exist yet. Existing
// directories are left untouched. Any other failure is returned and is meant
// to stop the process before the main loop starts.
func (l Layout) Ensure(fs afero.Fs) error {
	for _, dir := range l.Dirs() {
		if _, err := MkdirIfAbsent(fs, dir); err != nil {
			return fmt.Errorf("unable to create folder %s: %w", dir, err)
		}
	}
	return nil
}

// BatchBackupDir is where files overwritten by the batch are moved.
func (l Layout) BatchBackupDir(stamp string) string {
	return filepath.Join(l.BackupRoot, stamp)
}

// HistoryFolder is where a processed archive is moved.
func (l Layout) HistoryFolder(stamp string) string {
	return filepath.Join(l.HistoryDir, stamp)
}

// QuarantineFolder is where an unreadable archive is moved.
func (l Layout) QuarantineFolder(stamp string) string {
	return filepath.Join(l.ErrorDir, stamp)
}

// BatchStamp formats t as Y-M-D-H-Min-S without zero padding.
func BatchStamp(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d-%d-%d-%d",
		t.Year(), int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second())
}

// MkdirIfAbsent creates a single directory. It reports created=false without
// error when a directory already exists at path, and fails when something
// other than a directory is there.
func MkdirIfAbsent(fs afero.Fs, path string) (bool, error) {
	err := fs.Mkdir(path, 0755)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return false, err
	}

	info, statErr := fs.Stat(path)
	if statErr != nil {
		return false, statErr
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s exists and is not a directory", path)
	}
	return false, nil
}
