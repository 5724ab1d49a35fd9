package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"insp/internal/output"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List pending sync conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		resp, err := client().ListConflicts()
		if err != nil {
			output.Error("%v", err)
			return errSilent
		}
		if asJSON {
			output.JSON(resp)
			return nil
		}
		if len(resp.Conflicts) == 0 {
			output.Info("no pending conflicts")
			return nil
		}
		for i, c := range resp.Conflicts {
			if i > 0 {
				fmt.Println()
			}
			output.Conflict(c)
		}
		return nil
	},
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List recent sync batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		resp, err := client().ListBatches(limit)
		if err != nil {
			output.Error("%v", err)
			return errSilent
		}
		if asJSON {
			output.JSON(resp)
			return nil
		}
		if len(resp.Batches) == 0 {
			output.Info("no sync batches yet")
			return nil
		}
		for _, b := range resp.Batches {
			output.Info("%s  %s  applied=%d conflicts=%d  strategy=%s",
				b.ID, output.RelativeTime(b.Timestamp), len(b.Operations), len(b.Conflicts), b.Metadata.Strategy)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(batchesCmd)
	conflictsCmd.Flags().Bool("json", false, "output JSON")
	batchesCmd.Flags().Int("limit", 20, "max batches to list")
	batchesCmd.Flags().Bool("json", false, "output JSON")
}
