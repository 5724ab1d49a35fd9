package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"insp/internal/models"
	"insp/internal/output"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and add to the offline queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		q, err := client().GetQueue()
		if err != nil {
			output.Error("%v", err)
			return errSilent
		}
		if asJSON {
			output.JSON(q)
			return nil
		}
		output.Queue(q.Operations)
		return nil
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <entity-type> <entity-id> <operation>",
	Short: "Queue a change for later sync",
	Long: `Queue a create, update, or delete for later sync. The payload is read
from --data as a JSON object; deletes need no payload.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")

		et := models.EntityType(args[0])
		op := models.Operation(args[2])
		var payload json.RawMessage
		if data != "" {
			if !json.Valid([]byte(data)) {
				output.Error("--data is not valid JSON")
				return errSilent
			}
			payload = json.RawMessage(data)
		}

		change := models.Change{
			ID:             newChangeID(),
			EntityType:     et,
			EntityID:       args[1],
			Operation:      op,
			Payload:        payload,
			Timestamp:      time.Now().UTC(),
			OriginDeviceID: deviceID,
			OriginUserID:   userID,
		}
		if err := client().QueueOperation(change); err != nil {
			output.Error("%v", err)
			return errSilent
		}
		output.Success("queued %s %s/%s", op, et, args[1])
		return nil
	},
}

// newChangeID generates a client-side change ID.
func newChangeID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "ch-unknown"
	}
	return "ch-" + hex.EncodeToString(b)
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.Flags().Bool("json", false, "output JSON")
	queueAddCmd.Flags().String("data", "", "JSON payload for the change")
}
