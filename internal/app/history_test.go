package app

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/blackwell-systems/autoupdater/internal/store"
)

func TestHistoryCommand(t *testing.T) {
	if historyCmd.Use != "history" {
		t.Errorf("expected Use to be 'history', got '%s'", historyCmd.Use)
	}

	limit := historyCmd.Flags().Lookup("limit")
	if limit == nil {
		t.Fatal("expected --limit flag to be registered")
	}
	if limit.DefValue != "20" {
		t.Errorf("expected --limit default 20, got %s", limit.DefValue)
	}
	if historyCmd.Flags().Lookup("batch") == nil {
		t.Error("expected --batch flag to be registered")
	}
}

func TestRunHistory_NoLedger(t *testing.T) {
	newWorkspace(t)
	setInt(t, &historyLimit, 20)
	setString(t, &historyBatch, "")

	_, err := captureStdout(t, func() error { return runHistory(nil, nil) })
	if !errors.Is(err, store.ErrNotInitialized) {
		t.Fatalf("runHistory() error = %v, want ErrNotInitialized", err)
	}
}

func TestOpenExistingLedger_DoesNotCreate(t *testing.T) {
	ws := newWorkspace(t)

	st, err := openExistingLedger()
	if !errors.Is(err, store.ErrNotInitialized) {
		t.Fatalf("openExistingLedger() error = %v, want ErrNotInitialized", err)
	}
	if st != nil {
		t.Error("expected no store")
	}
	if _, err := os.Stat(ws.db); !os.IsNotExist(err) {
		t.Errorf("ledger file should not have been created, stat error = %v", err)
	}
}

func TestRunHistory_ListsBatches(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	ws := newWorkspace(t)
	seedLedger(t, ws.db, store.StatusPartial)
	setInt(t, &historyLimit, 20)
	setString(t, &historyBatch, "")

	out, err := captureStdout(t, func() error { return runHistory(nil, nil) })
	if err != nil {
		t.Fatalf("runHistory() error: %v", err)
	}

	for _, want := range []string{"0b7e3f0c", "release-7.zip", "partial", "2/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunHistory_BatchDetail(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	ws := newWorkspace(t)
	seedLedger(t, ws.db, store.StatusApplied)
	setInt(t, &historyLimit, 20)
	setString(t, &historyBatch, "0b7e")

	out, err := captureStdout(t, func() error { return runHistory(nil, nil) })
	if err != nil {
		t.Fatalf("runHistory() error: %v", err)
	}

	for _, want := range []string{"0b7e3f0c-1111-2222-3333-444455556666", "Backed up files (1)", "bin/app.exe"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunHistory_UnknownBatch(t *testing.T) {
	ws := newWorkspace(t)
	seedLedger(t, ws.db, store.StatusApplied)
	setInt(t, &historyLimit, 20)
	setString(t, &historyBatch, "ffff")

	_, err := captureStdout(t, func() error { return runHistory(nil, nil) })
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("runHistory() error = %v, want not found", err)
	}
}

func TestRunHistory_NegativeLimit(t *testing.T) {
	newWorkspace(t)
	setInt(t, &historyLimit, -1)
	setString(t, &historyBatch, "")

	if err := runHistory(nil, nil); err == nil {
		t.Fatal("expected an error for a negative limit")
	}
}
