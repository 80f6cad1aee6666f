package app

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/blackwell-systems/autoupdater/internal/config"
	"github.com/blackwell-systems/autoupdater/internal/layout"
	"github.com/blackwell-systems/autoupdater/internal/notify"
)

// absentProcess is a process name no test machine runs.
const absentProcess = "autoupdater-test-absent-process" + config.ExecutableSuffix

// workspace is a temporary installation: the three configured roots and a
// config file naming them. The global path flags point into it for the
// duration of the test.
type workspace struct {
	dir    string
	target string
	update string
	backup string
	config string
	db     string
	log    string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		dir:    dir,
		target: filepath.Join(dir, "target"),
		update: filepath.Join(dir, "update"),
		backup: filepath.Join(dir, "backup"),
		config: filepath.Join(dir, config.DefaultFileName),
		db:     filepath.Join(dir, "ledger.db"),
		log:    filepath.Join(dir, "error.log"),
	}
	for _, d := range []string{ws.target, ws.update, ws.backup} {
		if err := os.Mkdir(d, 0755); err != nil {
			t.Fatalf("Mkdir: %v", err)
		}
	}

	content := "process=" + absentProcess + "\n" +
		"target_dir=" + ws.target + "\n" +
		"update_dir=" + ws.update + "\n" +
		"backup_dir=" + ws.backup + "\n"
	if err := os.WriteFile(ws.config, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	setString(t, &configPath, ws.config)
	setString(t, &dbPath, ws.db)
	setString(t, &logFile, ws.log)
	setString(t, &logLevel, "warn")
	return ws
}

func (ws *workspace) layout() layout.Layout {
	return layout.New(ws.target, ws.update, ws.backup)
}

// stage writes a zip with the given entries into staging.
func (ws *workspace) stage(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	staging := ws.layout().StagingDir
	if err := os.MkdirAll(staging, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for entryName, body := range entries {
		w, err := zw.Create(entryName)
		if err != nil {
			t.Fatalf("zip Create: %v", err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}

	path := filepath.Join(staging, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func setString(t *testing.T, p *string, v string) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

func setBool(t *testing.T, p *bool, v bool) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

func setInt(t *testing.T, p *int, v int) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

// recordNotifications replaces the platform notifier for the test.
func recordNotifications(t *testing.T) func() []notify.Message {
	t.Helper()
	var (
		mu   sync.Mutex
		msgs []notify.Message
	)
	old := defaultNotifier
	defaultNotifier = func() notify.Notifier {
		return notify.Func(func(m notify.Message) {
			mu.Lock()
			defer mu.Unlock()
			msgs = append(msgs, m)
		})
	}
	t.Cleanup(func() { defaultNotifier = old })

	return func() []notify.Message {
		mu.Lock()
		defer mu.Unlock()
		return append([]notify.Message(nil), msgs...)
	}
}

// captureStdout runs fn with os.Stdout redirected and returns what it printed.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	copied := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(copied)
	}()

	runErr := fn()

	w.Close()
	<-copied
	os.Stdout = orig
	return buf.String(), runErr
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}
