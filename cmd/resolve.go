package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"insp/internal/models"
	"insp/internal/output"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a pending conflict",
	Long: `Resolve a pending conflict. With --strategy the resolution runs
non-interactively; otherwise an interactive picker shows both sides and
asks for a strategy.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conflictID := args[0]
		strategyFlag, _ := cmd.Flags().GetString("strategy")
		mergedFlag, _ := cmd.Flags().GetString("merged-data")

		var merged json.RawMessage
		if mergedFlag != "" {
			if !json.Valid([]byte(mergedFlag)) {
				output.Error("--merged-data is not valid JSON")
				return errSilent
			}
			merged = json.RawMessage(mergedFlag)
		}

		strategy := models.Strategy(strategyFlag)
		if strategyFlag == "" {
			picked, err := pickStrategy(conflictID)
			if err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				output.Error("%v", err)
				return errSilent
			}
			strategy = picked
		}
		if !models.ValidStrategy(strategy) {
			output.Error("unknown strategy %q", strategy)
			return errSilent
		}

		res, err := client().ResolveConflict(conflictID, strategy, merged)
		if err != nil {
			output.Error("%v", err)
			return errSilent
		}
		if !res.Resolved {
			if res.Error != "" {
				output.Warning("not resolved: %s", res.Error)
			} else {
				output.Warning("not resolved; conflict left pending")
			}
			return nil
		}
		output.Success("conflict %s resolved with %s", conflictID, strategy)
		return nil
	},
}

// pickStrategy shows the conflict and prompts for a strategy.
func pickStrategy(conflictID string) (models.Strategy, error) {
	resp, err := client().ListConflicts()
	if err != nil {
		return "", err
	}
	for _, c := range resp.Conflicts {
		if c.ID == conflictID {
			output.Conflict(c)
			fmt.Println()
			break
		}
	}

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Resolution strategy").
				Options(
					huh.NewOption("server wins (keep server version)", string(models.StrategyServerWins)),
					huh.NewOption("client wins (keep local version)", string(models.StrategyClientWins)),
					huh.NewOption("merge (combine both versions)", string(models.StrategyMerge)),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return models.Strategy(choice), nil
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().String("strategy", "", "resolution strategy: client_wins, server_wins, merge")
	resolveCmd.Flags().String("merged-data", "", "JSON payload to use as the merged result")
}
