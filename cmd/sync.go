package cmd

import (
	"github.com/spf13/cobra"

	"insp/internal/models"
	"insp/internal/output"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync session against the daemon",
	Long: `Run a sync session. Without --force the session syncs with no local
changes (pull only); with --force the offline queue is drained through
the session and cleared on full success.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")
		force, _ := cmd.Flags().GetBool("force")
		asJSON, _ := cmd.Flags().GetBool("json")

		opts := models.SyncOptions{Strategy: models.Strategy(strategy)}
		if opts.Strategy != "" && !models.ValidStrategy(opts.Strategy) {
			output.Error("unknown strategy %q", strategy)
			return errSilent
		}

		c := client()
		var (
			result *models.SyncResult
			err    error
		)
		if force {
			result, err = c.ForceSync(opts)
		} else {
			result, err = c.Synchronize(nil, opts)
		}
		if err != nil {
			output.Error("%v", err)
			return errSilent
		}

		if asJSON {
			output.JSON(result)
			return nil
		}
		output.SyncResult(result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("strategy", "", "resolution strategy: client_wins, server_wins, merge, manual")
	syncCmd.Flags().Bool("force", false, "drain the offline queue through this session")
	syncCmd.Flags().Bool("json", false, "output JSON")
}
