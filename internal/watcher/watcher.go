package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/autoupdater/internal/layout"
	"github.com/blackwell-systems/autoupdater/internal/logger"
	"github.com/blackwell-systems/autoupdater/internal/metrics"
	"github.com/blackwell-systems/autoupdater/internal/notify"
	"github.com/blackwell-systems/autoupdater/internal/scanner"
	"github.com/blackwell-systems/autoupdater/internal/store"
	"github.com/blackwell-systems/autoupdater/internal/updater"
)

// DefaultInterval is the idle time between two scans.
const DefaultInterval = 30 * time.Second

// Gate blocks until the named process is no longer running.
type Gate interface {
	WaitUntilAbsent(ctx context.Context, name string) error
}

// Config wires the collaborators of a Watcher. Store, Metrics, Notifier and
// Wake are optional.
type Config struct {
	ProcessName string
	Layout      layout.Layout
	Interval    time.Duration

	Scanner   *scanner.Scanner
	Gate      Gate
	Applier   *updater.Applier
	Lifecycle *updater.Lifecycle

	Notifier notify.Notifier
	Store    *store.Store
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	// Wake cuts the idle sleep short when it receives.
	Wake <-chan struct{}
	// Now defaults to time.Now.
	Now func() time.Time
}

// Watcher runs the update loop: scan staging, wait for the target process,
// apply each archive, then move it to history or quarantine.
type Watcher struct {
	cfg Config
	log zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	err    error
}

// New creates a Watcher.
func New(cfg Config) (*Watcher, error) {
	switch {
	case cfg.ProcessName == "":
		return nil, fmt.Errorf("process name cannot be empty")
	case cfg.Scanner == nil:
		return nil, fmt.Errorf("scanner cannot be nil")
	case cfg.Gate == nil:
		return nil, fmt.Errorf("gate cannot be nil")
	case cfg.Applier == nil:
		return nil, fmt.Errorf("applier cannot be nil")
	case cfg.Lifecycle == nil:
		return nil, fmt.Errorf("lifecycle cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watcher{cfg: cfg, log: cfg.Logger}, nil
}

// Outcome is what happened to one archive during a cycle.
type Outcome struct {
	Batch       updater.Batch
	Status      store.BatchStatus
	Result      updater.Result
	Destination string
	Err         error
}

// CycleReport summarises one pass over staging.
type CycleReport struct {
	Found    int
	Outcomes []Outcome
}

// Updated reports whether at least one archive was fully or partially applied.
func (r CycleReport) Updated() bool {
	return r.Count(store.StatusApplied)+r.Count(store.StatusPartial) > 0
}

// Count returns the number of outcomes with the given status.
func (r CycleReport) Count(status store.BatchStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// RunCycle scans staging once and processes every archive found, one at a
// time. It stops early only when ctx is done, and never between the first and
// last entry of an archive.
func (w *Watcher) RunCycle(ctx context.Context) CycleReport {
	var report CycleReport

	paths, err := w.cfg.Scanner.Scan()
	if err != nil {
		logger.Warning(w.log).Err(err).Msgf("Unable to scan %s", w.cfg.Scanner.Root())
		return report
	}
	report.Found = len(paths)
	w.cfg.Metrics.StagingArchives(len(paths))

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		report.Outcomes = append(report.Outcomes, w.processArchive(ctx, path))
	}

	if report.Updated() && w.cfg.Notifier != nil {
		w.cfg.Notifier.Notify(notify.UpdateCompleted())
	}
	return report
}

func (w *Watcher) processArchive(ctx context.Context, path string) (out Outcome) {
	b := updater.NewBatch(path, w.cfg.Now())
	out.Batch = b
	backupDir := w.cfg.Layout.BatchBackupDir(b.Stamp)
	log := w.log.With().Str("archive", path).Str("batch", b.ID.String()).Logger()

	rec := &store.Batch{
		BatchID:   b.ID.String(),
		Archive:   path,
		Stamp:     b.Stamp,
		StartedAt: b.DiscoveredAt,
		BackupDir: backupDir,
	}
	w.recordStart(log, rec)

	var took time.Duration
	defer func() {
		w.recordFinish(log, rec, out)
		w.cfg.Metrics.BatchFinished(string(out.Status), out.Result.Applied, len(out.Result.BackedUp), took)
	}()

	if err := w.cfg.Applier.Check(path); err != nil {
		logger.Warning(log).Err(err).Msgf("Unable to open zip file %s", path)
		return w.quarantine(log, out, err)
	}

	if err := w.cfg.Gate.WaitUntilAbsent(ctx, w.cfg.ProcessName); err != nil {
		if ctx.Err() == nil {
			logger.Warning(log).Err(err).Msg("Unable to read the process list, update postponed to the next cycle")
		}
		out.Status = store.StatusDeferred
		out.Err = err
		return out
	}

	start := time.Now()
	res, err := w.cfg.Applier.Apply(path, w.cfg.Layout.TargetDir, backupDir)
	took = time.Since(start)
	out.Result = res
	out.Err = err

	switch {
	case errors.Is(err, updater.ErrArchiveUnreadable):
		logger.Warning(log).Err(err).Msgf("Unable to open zip file %s", path)
		return w.quarantine(log, out, err)
	case errors.Is(err, updater.ErrBackupDirUnavailable):
		out.Status = store.StatusDeferred
		return out
	case err != nil || !res.Complete():
		out.Status = store.StatusPartial
	default:
		out.Status = store.StatusApplied
	}

	log.Info().Int("applied", res.Applied).Int("total", res.Total).Msg("Archive applied")

	dest, err := w.cfg.Lifecycle.Archive(b)
	if err != nil {
		logger.Warning(log).Err(err).Msgf("Unable to move archive %s", path)
		return out
	}
	out.Destination = dest
	return out
}

func (w *Watcher) quarantine(log zerolog.Logger, out Outcome, cause error) Outcome {
	out.Status = store.StatusQuarantined
	out.Err = cause
	dest, err := w.cfg.Lifecycle.Quarantine(out.Batch)
	if err != nil {
		logger.Warning(log).Err(err).Msgf("Unable to move the file %s", out.Batch.ArchivePath)
		return out
	}
	out.Destination = dest
	return out
}

func (w *Watcher) recordStart(log zerolog.Logger, rec *store.Batch) {
	if w.cfg.Store == nil {
		return
	}
	if err := w.cfg.Store.InsertBatch(rec); err != nil {
		logger.Warning(log).Err(err).Msg("Unable to record batch")
	}
}

func (w *Watcher) recordFinish(log zerolog.Logger, rec *store.Batch, out Outcome) {
	if w.cfg.Store == nil || rec.ID == 0 {
		return
	}

	rec.Status = out.Status
	rec.Applied = out.Result.Applied
	rec.Total = out.Result.Total
	rec.Destination = out.Destination
	rec.Error = ""
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if err := w.cfg.Store.FinishBatch(rec); err != nil {
		logger.Warning(log).Err(err).Msg("Unable to record batch outcome")
	}

	for _, f := range out.Result.BackedUp {
		row := &store.BackedUpFile{BatchID: rec.BatchID, RelativePath: f.RelativePath, BackupPath: f.BackupPath}
		if err := w.cfg.Store.InsertBackedUpFile(row); err != nil {
			logger.Warning(log).Err(err).Msgf("Unable to record backup of %s", f.RelativePath)
		}
	}
}

// Run repeats RunCycle, sleeping the configured interval between cycles, until
// ctx is done. Cancellation is a graceful shutdown and returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		report := w.RunCycle(ctx)
		if report.Found > 0 {
			w.log.Info().
				Int("found", report.Found).
				Int("applied", report.Count(store.StatusApplied)).
				Int("partial", report.Count(store.StatusPartial)).
				Int("quarantined", report.Count(store.StatusQuarantined)).
				Int("deferred", report.Count(store.StatusDeferred)).
				Msg("Cycle finished")
		}

		timer := time.NewTimer(w.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		case <-w.cfg.Wake:
			timer.Stop()
		}
	}
}

// Start runs the loop in a background goroutine.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("watcher already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		err := w.Run(ctx)
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()
	return nil
}

// Stop asks the loop to finish the archive in progress and waits for it.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancel = nil
	return w.err
}
