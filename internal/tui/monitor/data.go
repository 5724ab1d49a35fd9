package monitor

import (
	"time"

	"insp/internal/syncclient"
)

// FetchData retrieves all data needed for the monitor display. Partial
// failures keep whatever succeeded; the first error is surfaced in the
// footer.
func FetchData(client *syncclient.Client) RefreshDataMsg {
	msg := RefreshDataMsg{Timestamp: time.Now()}

	st, err := client.Status()
	if err != nil {
		msg.Err = err
		return msg
	}
	msg.Status = st

	if conflicts, err := client.ListConflicts(); err == nil {
		msg.Conflicts = conflicts.Conflicts
	} else if msg.Err == nil {
		msg.Err = err
	}

	if batches, err := client.ListBatches(30); err == nil {
		msg.Batches = batches.Batches
	} else if msg.Err == nil {
		msg.Err = err
	}

	if metrics, err := client.Metrics(); err == nil {
		msg.Metrics = metrics
	}

	return msg
}
