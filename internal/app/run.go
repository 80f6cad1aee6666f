package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/autoupdater/internal/config"
	"github.com/blackwell-systems/autoupdater/internal/logger"
	"github.com/blackwell-systems/autoupdater/internal/metrics"
	"github.com/blackwell-systems/autoupdater/internal/output"
	"github.com/blackwell-systems/autoupdater/internal/store"
	"github.com/blackwell-systems/autoupdater/internal/watcher"
)

// stopTimeout bounds how long 'run --stop' waits for the daemon to finish
// the archive in progress.
const stopTimeout = 60 * time.Second

var (
	runDaemon        bool
	runDaemonChild   bool
	runPIDFile       string
	runDaemonLog     string
	runStop          bool
	runOnce          bool
	runMetricsAddr   string
	runWakeOnArrival bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Apply update packages as they arrive",
		Long: `Start the update loop.

Every cycle the staging directory (<update_dir>/__auto_updater) is scanned for
zip packages. For each package found, autoupdater waits until the configured
process is no longer running, moves every file the package would overwrite into
<backup_dir>/<timestamp>, writes the package contents into the target
directory, then moves the package to <update_dir>/__auto_updater_history.
Packages that cannot be opened go to <backup_dir>/__auto_updater_error.

Run modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a detached background process tracked by a PID file
  • Stop: Stop a running daemon
  • Once: Process what is in staging now, then exit

Stopping never interrupts a package half way: the loop finishes the package in
progress and exits before the next one.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  autoupdater run

  # Run as background daemon
  autoupdater run --daemon

  # Stop running daemon
  autoupdater run --stop

  # Apply whatever is waiting, then exit
  autoupdater run --once

  # React to new packages immediately and expose metrics
  autoupdater run --wake-on-arrival --metrics-addr 127.0.0.1:9310`,
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().BoolVar(&runDaemon, "daemon", false, "run as background daemon")
	runCmd.Flags().BoolVar(&runDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	runCmd.Flags().StringVar(&runPIDFile, "pid-file", "", "PID file path (default: ./autoupdater.pid)")
	runCmd.Flags().StringVar(&runDaemonLog, "daemon-log", "", "daemon stdout/stderr file (default: ./autoupdater.out)")
	runCmd.Flags().BoolVar(&runStop, "stop", false, "stop running daemon")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.Flags().BoolVar(&runWakeOnArrival, "wake-on-arrival", false, "start a cycle as soon as a package lands in staging")

	// Hide the internal daemon-child flag from help
	runCmd.Flags().MarkHidden("daemon-child")
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	if runPIDFile == "" {
		runPIDFile = getDefaultPIDFile()
	}
	if runDaemonLog == "" {
		runDaemonLog = getDefaultOutFile()
	}

	if runStop {
		return stopRunDaemon()
	}
	if runDaemon {
		return startRunDaemon()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var console io.Writer
	if !runDaemonChild {
		console = os.Stderr
	}

	a, err := newAgent(ctx, agentOptions{Console: console, WakeOnArrival: runWakeOnArrival})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	if runOnce {
		report := a.watcher.RunCycle(ctx)
		fmt.Print(renderCycleReport(report))
		return nil
	}

	if runMetricsAddr != "" {
		go serveMetrics(ctx, a)
	}

	if runDaemonChild {
		// stdout and stderr are redirected to the daemon log by the parent.
		return a.watcher.RunDaemon(runPIDFile)
	}

	return runForeground(ctx, a)
}

func runForeground(ctx context.Context, a *agent) error {
	fmt.Printf("Watching %s for updates to %s (press Ctrl+C to stop)...\n", a.layout.StagingDir, a.cfg.ProcessName)
	fmt.Printf("Staging is scanned every %s.\n", a.cfg.PollInterval)
	fmt.Println()

	if err := a.watcher.Run(ctx); err != nil {
		return fmt.Errorf("update loop failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Update loop stopped")
	return nil
}

func serveMetrics(ctx context.Context, a *agent) {
	a.log.Info().Str("addr", runMetricsAddr).Msg("Serving metrics")
	if err := metrics.Serve(ctx, runMetricsAddr, a.registry); err != nil {
		logger.Warning(a.log.Logger).Err(err).Msgf("Metrics listener on %s stopped", runMetricsAddr)
	}
}

func stopRunDaemon() error {
	running, err := watcher.IsDaemonRunning(runPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Waiting for daemon to finish the current package").WithTimeout(stopTimeout)
	spinner.Start()
	if err := watcher.StopDaemon(runPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		running, err := watcher.IsDaemonRunning(runPIDFile)
		if err == nil && !running {
			spinner.StopWithMessage("✓ Daemon stopped")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}

	spinner.Stop()
	return fmt.Errorf("daemon did not exit within %s (PID file: %s)", stopTimeout, runPIDFile)
}

func startRunDaemon() error {
	// Fail here rather than in the detached child where nobody sees it.
	if _, err := config.Load(getConfigPath()); err != nil {
		return err
	}

	running, err := watcher.IsDaemonRunning(runPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if running {
		return fmt.Errorf("daemon already running (PID file: %s)", runPIDFile)
	}

	spinner := output.NewSpinner("Starting daemon")
	spinner.Start()
	if err := watcher.StartDaemon(runPIDFile, runDaemonLog, daemonChildArgs()); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Printf("\nUpdate daemon started\n")
	fmt.Printf("  Config:    %s\n", getConfigPath())
	fmt.Printf("  PID file:  %s\n", runPIDFile)
	fmt.Printf("  Error log: %s\n", getLogPath())
	fmt.Printf("\nTo stop: autoupdater run --stop\n")

	return nil
}

// daemonChildArgs rebuilds the command line for the detached child with every
// path made absolute.
func daemonChildArgs() []string {
	args := []string{
		"run", "--daemon-child",
		"--config", getConfigPath(),
		"--db", getDBPath(),
		"--log-file", getLogPath(),
		"--log-level", logLevel,
		"--pid-file", runPIDFile,
	}
	if runMetricsAddr != "" {
		args = append(args, "--metrics-addr", runMetricsAddr)
	}
	if runWakeOnArrival {
		args = append(args, "--wake-on-arrival")
	}
	return args
}

// renderCycleReport summarises a single cycle for 'run --once'.
func renderCycleReport(report watcher.CycleReport) string {
	if report.Found == 0 {
		return "No packages waiting in staging.\n"
	}

	counts := make(map[store.BatchStatus]int)
	for _, o := range report.Outcomes {
		counts[o.Status]++
	}

	s := fmt.Sprintf("Processed %d of %d package(s): %s", len(report.Outcomes), report.Found, output.RenderStatusCounts(counts))
	for _, o := range report.Outcomes {
		line := fmt.Sprintf("  %-12s %s", o.Status, o.Batch.ArchiveName())
		if o.Status == store.StatusApplied || o.Status == store.StatusPartial {
			line += fmt.Sprintf(" (%d/%d entries)", o.Result.Applied, o.Result.Total)
		}
		if o.Err != nil {
			line += ": " + o.Err.Error()
		}
		s += line + "\n"
	}
	return s
}
