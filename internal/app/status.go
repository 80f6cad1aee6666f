package app

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/autoupdater/internal/config"
	"github.com/blackwell-systems/autoupdater/internal/layout"
	"github.com/blackwell-systems/autoupdater/internal/output"
	"github.com/blackwell-systems/autoupdater/internal/scanner"
	"github.com/blackwell-systems/autoupdater/internal/store"
	"github.com/blackwell-systems/autoupdater/internal/watcher"
)

var (
	statusPIDFile string

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show daemon state, pending packages and the last update",
		Long: `Display the current state of the updater.

Shows:
  • Daemon running status and PID
  • Configured process and directories
  • Number of packages waiting in staging
  • The most recent batch and totals per outcome

status only reads; it never creates directories or applies packages.`,
		Example: `  # Check status
  autoupdater status

  # Check a daemon started with a custom PID file
  autoupdater status --pid-file /tmp/autoupdater.pid`,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().StringVar(&statusPIDFile, "pid-file", "", "PID file path (default: ./autoupdater.pid)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidFile := statusPIDFile
	if pidFile == "" {
		pidFile = getDefaultPIDFile()
	}

	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	const label = "%-13s"

	fmt.Println()

	if running {
		pid, _ := watcher.ReadPID(pidFile)
		fmt.Printf(label+"running (PID %d)\n", "Daemon:", pid)
	} else {
		fmt.Printf(label+"stopped  (run 'autoupdater run --daemon')\n", "Daemon:")
	}

	cfgPath := getConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf(label+"%s\n", "Config:", cfgPath)
		fmt.Printf(label+"%v\n", "", err)
	} else {
		l := layout.FromConfig(cfg)
		fmt.Printf(label+"%s\n", "Config:", cfgPath)
		fmt.Printf(label+"%s\n", "Process:", cfg.ProcessName)
		fmt.Printf(label+"%s\n", "Target:", l.TargetDir)
		fmt.Printf(label+"%s · %s\n", "Staging:", l.StagingDir, pendingSummary(l, cfg.ArchiveExt))
		fmt.Printf(label+"%s\n", "History:", l.HistoryDir)
		fmt.Printf(label+"%s\n", "Backups:", l.BackupRoot)
	}

	printLedgerSummary(label)

	fmt.Println()
	return nil
}

// pendingSummary counts archives waiting in staging.
func pendingSummary(l layout.Layout, ext string) string {
	paths, err := scanner.New(afero.NewOsFs(), l.StagingDir, ext).Scan()
	if err != nil {
		return "not created (run 'autoupdater layout')"
	}
	switch len(paths) {
	case 0:
		return "nothing pending"
	case 1:
		return "1 package waiting"
	default:
		return fmt.Sprintf("%d packages waiting", len(paths))
	}
}

func printLedgerSummary(label string) {
	st, err := openExistingLedger()
	if err != nil {
		fmt.Printf(label+"%v\n", "Last batch:", err)
		return
	}
	defer st.Close()

	last, err := st.LastBatch()
	switch {
	case errors.Is(err, store.ErrNotInitialized):
		fmt.Printf(label+"none recorded yet\n", "Last batch:")
		return
	case err != nil:
		fmt.Printf(label+"%v\n", "Last batch:", err)
		return
	case last == nil:
		fmt.Printf(label+"none recorded yet\n", "Last batch:")
		return
	}
	fmt.Printf(label+"%s", "Last batch:", output.RenderBatchSummary(last))

	counts, err := st.CountByStatus()
	if err != nil {
		return
	}
	fmt.Printf(label+"%s", "Batches:", output.RenderStatusCounts(counts))
}
