package app

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/autoupdater/internal/config"
	"github.com/blackwell-systems/autoupdater/internal/layout"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Create the working directories and print where they are",
	Long: `Read the configuration and create the directories the update loop works in:

  <update_dir>/__auto_updater          packages waiting to be applied
  <update_dir>/__auto_updater_history  packages already applied
  <backup_dir>                         one dated folder of replaced files per batch
  <backup_dir>/__auto_updater_error    packages that could not be opened

Directories that already exist are left untouched. 'autoupdater run' performs the
same step at startup; run it by hand to prepare a machine before the first
package arrives.`,
	Example: `  # Prepare the directories from ./config.txt
  autoupdater layout

  # Use another configuration file
  autoupdater layout --config /etc/autoupdater/config.txt`,
	RunE: runLayout,
}

func runLayout(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}

	l := layout.FromConfig(cfg)
	if err := l.Ensure(afero.NewOsFs()); err != nil {
		return err
	}

	const label = "%-10s"
	fmt.Printf(label+"%s\n", "Target:", l.TargetDir)
	fmt.Printf(label+"%s\n", "Staging:", l.StagingDir)
	fmt.Printf(label+"%s\n", "History:", l.HistoryDir)
	fmt.Printf(label+"%s\n", "Backups:", l.BackupRoot)
	fmt.Printf(label+"%s\n", "Errors:", l.ErrorDir)
	return nil
}
