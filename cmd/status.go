package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"insp/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status for this user and device",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := client().Status()
		if err != nil {
			output.Error("%v", err)
			return errSilent
		}

		if asJSON {
			output.JSON(st)
			return nil
		}

		if st.Active != nil {
			output.Info("active sync: %s (%d/%d, %.0f%%)",
				st.Active.SyncID, st.Active.Completed+st.Active.Failed, st.Active.Total, st.Active.Percentage)
		} else {
			output.Info("no active sync")
		}
		last := "never"
		if st.LastSyncAt != nil {
			last = output.RelativeTime(*st.LastSyncAt)
		}
		output.Info("last sync:   %s", last)
		output.Info("queue depth: %d", st.QueueDepth)
		if st.PendingConflicts > 0 {
			output.Warning("%d pending conflict(s); run 'insp conflicts'", st.PendingConflicts)
		} else {
			fmt.Println("no pending conflicts")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "output JSON")
}
