package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/autoupdater/internal/config"
	"github.com/blackwell-systems/autoupdater/internal/logger"
)

// Files created in the working directory when no flag overrides them.
const (
	defaultDBFile  = "autoupdater.db"
	defaultPIDFile = "autoupdater.pid"
	defaultOutFile = "autoupdater.out"
)

var (
	configPath string
	dbPath     string
	logFile    string
	logLevel   string

	// RootCmd is the root command for autoupdater
	RootCmd = &cobra.Command{
		Use:   "autoupdater",
		Short: "Unattended updater that applies zip packages to a local install",
		Long: `autoupdater watches an update directory for zip packages and applies them
to a target directory once the target application has exited.

Files that an update overwrites are moved into a dated backup folder first, so
every original can be recovered by hand. Applied packages are moved to the
update history; packages that cannot be read are quarantined next to the
backups.

The configuration file (config.txt in the working directory by default) holds
four mandatory keys:

  process=app.exe
  target_dir=C:\Program Files\App
  update_dir=D:\Updates
  backup_dir=D:\Backups

Quick Start:
  1. autoupdater layout          # create the working directories
  2. autoupdater run --daemon    # keep this running
  3. drop packages into <update_dir>/__auto_updater`,
		Example: `  # Run the update loop in the foreground
  autoupdater run

  # Check daemon state and pending packages
  autoupdater status

  # See what earlier updates replaced
  autoupdater history`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("autoupdater: unattended package updater")
			fmt.Println()
			if _, err := os.Stat(getConfigPath()); os.IsNotExist(err) {
				fmt.Printf("No %s found. Create one, then run 'autoupdater layout'.\n", config.DefaultFileName)
			} else {
				fmt.Println("Tip: Run 'autoupdater run' to start applying updates.")
				fmt.Println("     Run 'autoupdater status' to check what is pending.")
			}
			fmt.Println("Run 'autoupdater --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (default: ./config.txt)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "batch ledger path (default: ./autoupdater.db)")
	RootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "error log path (default: ./error_log_auto_updater.txt)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "lowest level written to the error log (debug, info, warn, error)")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(historyCmd)
	RootCmd.AddCommand(layoutCmd)
	RootCmd.AddCommand(serviceCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// getConfigPath returns the configuration file, using the flag value or default
func getConfigPath() string {
	return workingFile(configPath, config.DefaultFileName)
}

// getDBPath returns the database path, using the flag value or default
func getDBPath() string {
	return workingFile(dbPath, defaultDBFile)
}

// getLogPath returns the error log path, using the flag value or default
func getLogPath() string {
	return workingFile(logFile, logger.DefaultFileName)
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() string {
	return workingFile("", defaultPIDFile)
}

// getDefaultOutFile returns where the daemon child's stdout and stderr go
func getDefaultOutFile() string {
	return workingFile("", defaultOutFile)
}

// workingFile resolves value, or name when value is empty, against the
// working directory. The result is absolute so it survives a daemon fork or a
// service manager starting us elsewhere.
func workingFile(value, name string) string {
	if value == "" {
		value = name
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return value
	}
	return abs
}
