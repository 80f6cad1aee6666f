package updater

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/autoupdater/internal/archive"
)

const (
	targetDir = "/app"
	backupDir = "/backup/2024-3-5-9-7-2"
)

// file is one archive member; names ending in "/" are directory entries.
type file struct {
	name string
	body string
}

func writeZip(t *testing.T, fs afero.Fs, path string, files ...file) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		if !strings.HasSuffix(f.name, "/") {
			_, err = io.WriteString(w, f.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0644))
}

func writeFile(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0644))
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err, path)
	return string(data)
}

func newMemFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(targetDir, 0755))
	require.NoError(t, fs.MkdirAll(filepath.Dir(backupDir), 0755))
	return fs
}

func newApplier(fs afero.Fs) *Applier {
	return NewApplier(fs, archive.NewZipOpener(fs), zerolog.Nop())
}

// faultyFs fails selected operations and passes everything else through.
type faultyFs struct {
	afero.Fs
	// failRenameAt fails the n-th Rename call (1-based); 0 disables.
	failRenameAt int
	renames      int
	failWrite    string
}

func (f *faultyFs) Rename(oldname, newname string) error {
	f.renames++
	if f.failRenameAt > 0 && f.renames == f.failRenameAt {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: errors.New("file is locked")}
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *faultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == f.failWrite && flag&os.O_WRONLY != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("disk full")}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

// fakeOpener serves synthetic archives.
type fakeOpener map[string][]archive.Entry

type fakeReader []archive.Entry

func (r fakeReader) Entries() []archive.Entry { return r }
func (r fakeReader) Close() error             { return nil }

func (o fakeOpener) Open(path string) (archive.Reader, error) {
	entries, ok := o[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return fakeReader(entries), nil
}

func content(body string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}
