// Package watcher runs the update loop.
//
// Each cycle scans the staging folder once and handles every archive it finds
// strictly one after another: unreadable archives are quarantined, readable
// ones wait until the target process has exited, are applied over the target
// directory with backups of every replaced file, and are then moved to the
// history folder. A completion notice is shown once per cycle that updated
// anything. Between cycles the loop sleeps for the configured interval, or
// less when an arrival watcher reports a new archive.
//
// Key features:
//   - One timestamp per archive, shared by its backup, history and quarantine folders
//   - Optional batch ledger in SQLite and Prometheus metrics
//   - Graceful shutdown between archives on SIGTERM/SIGINT
//   - Daemon mode support with PID file management
//
// Example usage:
//
//	w, err := watcher.New(watcher.Config{
//		ProcessName: cfg.ProcessName,
//		Layout:      l,
//		Scanner:     scanner.New(fs, l.StagingDir, cfg.ArchiveExt),
//		Gate:        process.NewGate(process.NewSystemLister(), notifier),
//		Applier:     updater.NewApplier(fs, archive.NewZipOpener(fs), log),
//		Lifecycle:   updater.NewLifecycle(fs, l),
//		Notifier:    notifier,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Run in the foreground until ctx is cancelled
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package watcher
