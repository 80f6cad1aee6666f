package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/blackwell-systems/autoupdater/internal/archive"
	"github.com/blackwell-systems/autoupdater/internal/config"
	"github.com/blackwell-systems/autoupdater/internal/layout"
	"github.com/blackwell-systems/autoupdater/internal/logger"
	"github.com/blackwell-systems/autoupdater/internal/metrics"
	"github.com/blackwell-systems/autoupdater/internal/notify"
	"github.com/blackwell-systems/autoupdater/internal/process"
	"github.com/blackwell-systems/autoupdater/internal/scanner"
	"github.com/blackwell-systems/autoupdater/internal/store"
	"github.com/blackwell-systems/autoupdater/internal/updater"
	"github.com/blackwell-systems/autoupdater/internal/watcher"
)

// defaultNotifier builds the notifier used when agentOptions.Notifier is nil.
var defaultNotifier = func() notify.Notifier { return notify.Default(os.Stderr) }

// agentOptions select the optional parts of an agent.
type agentOptions struct {
	// Console mirrors the error log, e.g. os.Stderr in the foreground.
	Console io.Writer
	// WakeOnArrival watches staging so new archives cut the idle sleep short.
	WakeOnArrival bool
	// Notifier overrides the platform default.
	Notifier notify.Notifier
	// Background selects a notifier that never waits for the user, for
	// processes without a desktop of their own. Undelivered notices are
	// written to the error log.
	Background bool
}

// agent is a fully wired update loop together with the resources it owns.
type agent struct {
	cfg      *config.Config
	layout   layout.Layout
	log      *logger.Logger
	store    *store.Store
	registry *prometheus.Registry
	notifier notify.Notifier
	watcher  *watcher.Watcher
}

// newAgent performs the startup sequence: open the error log, load the
// configuration, create the working directories, then wire the loop. A
// failure in any of the first three steps is logged as critical and returned;
// the caller exits 1.
//
// ctx bounds the staging watcher when WakeOnArrival is set.
func newAgent(ctx context.Context, opts agentOptions) (a *agent, err error) {
	log, err := openLogger(opts.Console)
	if err != nil {
		return nil, err
	}
	a = &agent{log: log}
	partial := a
	defer func() {
		if err != nil {
			partial.Close()
		}
	}()

	cfg, err := loadConfig(log.Logger)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	a.layout = layout.FromConfig(cfg)

	fs := afero.NewOsFs()
	if err := a.layout.Ensure(fs); err != nil {
		logger.Critical(log.Logger).Msg(err.Error())
		return nil, err
	}

	a.store = openLedger(log.Logger)
	a.registry = prometheus.NewRegistry()
	m := metrics.New(a.registry)

	notifier := opts.Notifier
	switch {
	case notifier != nil:
	case opts.Background:
		notifier = notify.Background(logNotifier(log.Logger))
	default:
		notifier = defaultNotifier()
	}
	a.notifier = notifier

	sc := scanner.New(fs, a.layout.StagingDir, cfg.ArchiveExt)
	gate := process.NewGate(process.NewSystemLister(), notifier,
		process.WithInterval(cfg.ProcessPollInterval),
		process.WithLogger(log.Logger),
		process.WithEpisodeHook(m.WaitEpisode),
	)

	var wake <-chan struct{}
	if opts.WakeOnArrival {
		wake, err = watcher.WatchArrivals(ctx, a.layout.StagingDir, sc.Matches, watcher.DefaultSettle, log.Logger)
		if err != nil {
			logger.Warning(log.Logger).Err(err).Msg("Staging watcher unavailable, relying on the poll interval")
			err = nil
		}
	}

	a.watcher, err = watcher.New(watcher.Config{
		ProcessName: cfg.ProcessName,
		Layout:      a.layout,
		Interval:    cfg.PollInterval,
		Scanner:     sc,
		Gate:        gate,
		Applier:     updater.NewApplier(fs, archive.NewZipOpener(fs), log.Logger),
		Lifecycle:   updater.NewLifecycle(fs, a.layout),
		Notifier:    notifier,
		Store:       a.store,
		Metrics:     m,
		Logger:      log.Logger,
		Wake:        wake,
	})
	if err != nil {
		logger.Critical(log.Logger).Msg(err.Error())
		return nil, err
	}

	return a, nil
}

// Close releases the ledger and the error log.
func (a *agent) Close() error {
	var result *multierror.Error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close batch ledger: %w", err))
		}
	}
	if a.log != nil {
		if err := a.log.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close error log: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// openLogger opens a fresh error log at the configured path and level.
func openLogger(console io.Writer) (*logger.Logger, error) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	cfg := logger.DefaultConfig()
	cfg.FilePath = getLogPath()
	cfg.Level = level
	cfg.Console = console
	return logger.New(cfg)
}

// loadConfig reads the configuration file. Failures are critical.
func loadConfig(log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		logger.Critical(log).Msg(err.Error())
		return nil, err
	}
	return cfg, nil
}

// openLedger opens the batch ledger for writing. The ledger is bookkeeping
// only, so failures are warnings and the loop runs without it.
func openLedger(log zerolog.Logger) *store.Store {
	path := getDBPath()
	st, err := store.New(path)
	if err != nil {
		logger.Warning(log).Err(err).Msgf("Unable to open batch ledger %s", path)
		return nil
	}
	if err := st.CreateSchema(); err != nil {
		logger.Warning(log).Err(err).Msgf("Unable to prepare batch ledger %s", path)
		st.Close()
		return nil
	}
	return st
}

// logNotifier writes notices to the error log as warnings.
func logNotifier(log zerolog.Logger) notify.Notifier {
	return notify.Func(func(msg notify.Message) {
		logger.Warning(log).Msgf("%s: %s", msg.Title, strings.Join(strings.Fields(msg.Body), " "))
	})
}

// openExistingLedger opens the ledger for the reporting commands. It never
// creates one.
func openExistingLedger() (*store.Store, error) {
	path := getDBPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, store.ErrNotInitialized
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch ledger: %w", err)
	}
	return st, nil
}
