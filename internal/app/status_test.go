package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/autoupdater/internal/store"
)

// seedLedger records one finished batch with a backed up file.
func seedLedger(t *testing.T, path string, status store.BatchStatus) *store.Batch {
	t.Helper()
	st, err := store.New(path)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	if err := st.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	b := &store.Batch{
		BatchID:   "0b7e3f0c-1111-2222-3333-444455556666",
		Archive:   filepath.Join("u", "__auto_updater", "release-7.zip"),
		Stamp:     "2024-3-5-9-7-2",
		StartedAt: time.Now().Add(-2 * time.Hour),
		BackupDir: filepath.Join("b", "2024-3-5-9-7-2"),
	}
	if err := st.InsertBatch(b); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	b.Status = status
	b.Applied, b.Total = 2, 2
	if err := st.FinishBatch(b); err != nil {
		t.Fatalf("FinishBatch: %v", err)
	}
	if err := st.InsertBackedUpFile(&store.BackedUpFile{
		BatchID:      b.BatchID,
		RelativePath: "bin/app.exe",
		BackupPath:   filepath.Join(b.BackupDir, "bin", "app.exe"),
	}); err != nil {
		t.Fatalf("InsertBackedUpFile: %v", err)
	}
	return b
}

func TestStatusCommand(t *testing.T) {
	if statusCmd.Use != "status" {
		t.Errorf("expected Use to be 'status', got '%s'", statusCmd.Use)
	}
	if statusCmd.Flags().Lookup("pid-file") == nil {
		t.Error("expected --pid-file flag to be registered")
	}
}

// TestRunStatus_DaemonStoppedSuggestsRunDaemon verifies that when no PID file
// exists the daemon line suggests how to start one.
func TestRunStatus_DaemonStoppedSuggestsRunDaemon(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	ws := newWorkspace(t)
	setString(t, &statusPIDFile, filepath.Join(ws.dir, "autoupdater.pid"))

	out, err := captureStdout(t, func() error { return runStatus(nil, nil) })
	if err != nil {
		t.Fatalf("runStatus() error: %v", err)
	}

	if !strings.Contains(out, "run --daemon") {
		t.Errorf("expected stopped daemon to suggest 'run --daemon', got:\n%s", out)
	}
	if !strings.Contains(out, absentProcess) {
		t.Errorf("expected process name in output, got:\n%s", out)
	}
	if !strings.Contains(out, "not created (run 'autoupdater layout')") {
		t.Errorf("expected missing staging to be reported, got:\n%s", out)
	}
	if !strings.Contains(out, "not initialized") {
		t.Errorf("expected missing ledger to be reported, got:\n%s", out)
	}

	// status only reads.
	if _, err := os.Stat(ws.layout().StagingDir); !os.IsNotExist(err) {
		t.Errorf("status should not create staging, stat err = %v", err)
	}
	if _, err := os.Stat(ws.db); !os.IsNotExist(err) {
		t.Errorf("status should not create the ledger, stat err = %v", err)
	}
}

func TestRunStatus_PendingAndLastBatch(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	ws := newWorkspace(t)
	setString(t, &statusPIDFile, filepath.Join(ws.dir, "autoupdater.pid"))

	ws.stage(t, "one.zip", map[string]string{"a": "1"})
	ws.stage(t, "two.zip", map[string]string{"b": "2"})
	seedLedger(t, ws.db, store.StatusApplied)

	out, err := captureStdout(t, func() error { return runStatus(nil, nil) })
	if err != nil {
		t.Fatalf("runStatus() error: %v", err)
	}

	for _, want := range []string{
		"2 packages waiting",
		"applied · 2024-3-5-9-7-2 · release-7.zip (2 hours ago)",
		"1 applied, 0 partial, 0 quarantined, 0 deferred",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunStatus_StalePIDFile(t *testing.T) {
	ws := newWorkspace(t)
	pidFile := filepath.Join(ws.dir, "autoupdater.pid")
	setString(t, &statusPIDFile, pidFile)

	// A PID far beyond any real process table.
	if err := os.WriteFile(pidFile, []byte("2147483000\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := captureStdout(t, func() error { return runStatus(nil, nil) })
	if err != nil {
		t.Fatalf("runStatus() error: %v", err)
	}
	if !strings.Contains(out, "stopped") {
		t.Errorf("expected stale PID file to read as stopped, got:\n%s", out)
	}
}

func TestRunStatus_BrokenConfig(t *testing.T) {
	ws := newWorkspace(t)
	setString(t, &statusPIDFile, filepath.Join(ws.dir, "autoupdater.pid"))
	if err := os.WriteFile(ws.config, []byte("process=\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := captureStdout(t, func() error { return runStatus(nil, nil) })
	if err != nil {
		t.Fatalf("runStatus() should report, not fail: %v", err)
	}
	if !strings.Contains(out, "missing configuration key") {
		t.Errorf("expected config error in output, got:\n%s", out)
	}
}
