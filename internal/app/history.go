package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/autoupdater/internal/output"
)

var (
	historyLimit int
	historyBatch string

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List applied, partial and quarantined update packages",
		Long: `List the batches recorded by 'autoupdater run', newest first.

Each batch is one package: its outcome, how many entries were applied, and
where the package was moved afterwards. With --batch, the files that batch
moved out of the target directory are listed together with their backup
location so they can be restored by hand.

Outcomes:
  • applied: every entry was written, package moved to history
  • partial: the batch stopped early, package moved to history
  • quarantined: the package could not be opened
  • deferred: left in staging for the next cycle`,
		Example: `  # Show the 20 most recent batches
  autoupdater history

  # Show everything
  autoupdater history --limit 0

  # Show the files a batch backed up (ID prefix is enough)
  autoupdater history --batch 0b7e3f0c`,
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of batches to show (0 for all)")
	historyCmd.Flags().StringVar(&historyBatch, "batch", "", "show the backed up files of one batch")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit < 0 {
		return fmt.Errorf("--limit must be zero or positive, got %d", historyLimit)
	}

	st, err := openExistingLedger()
	if err != nil {
		return err
	}
	defer st.Close()

	if historyBatch != "" {
		b, err := st.GetBatch(historyBatch)
		if err != nil {
			return err
		}
		files, err := st.ListBackedUpFiles(b.BatchID)
		if err != nil {
			return err
		}
		fmt.Print(output.RenderBatchDetail(b, files))
		return nil
	}

	batches, err := st.ListBatches(historyLimit)
	if err != nil {
		return err
	}
	fmt.Print(output.RenderBatchTable(batches))
	return nil
}
