package conflict

import (
	"encoding/json"
	"fmt"
	"time"

	"insp/internal/models"
)

// resolveInspection is the custom resolver for inspection entities.
// Field answers collected in the field are the valuable part of an
// inspection, so responses prefer the client side; photos from both
// sides are kept.
func resolveInspection(c models.SyncConflict) (models.ResolveResult, error) {
	client, err := decodePayload(c.ClientChange.Payload)
	if err != nil {
		return models.ResolveResult{}, fmt.Errorf("inspection resolver: client payload: %w", err)
	}

	var server map[string]any
	if c.ServerChange != nil {
		server, err = decodePayload(c.ServerChange.Payload)
		if err != nil {
			return models.ResolveResult{}, fmt.Errorf("inspection resolver: server payload: %w", err)
		}
	}

	// Server state is the base; client fields overlay it.
	merged := make(map[string]any, len(server)+len(client))
	for k, v := range server {
		merged[k] = v
	}
	for k, v := range client {
		merged[k] = v
	}

	// Responses: keep client answers, pick up server-only ones.
	if carr, ok := client["responses"].([]any); ok {
		if sarr, ok := server["responses"].([]any); ok {
			merged["responses"] = unionByID(carr, sarr)
		}
	}

	// Photos: concatenate both sides, nothing is dropped.
	if carr, ok := client["photos"].([]any); ok {
		sarr, _ := server["photos"].([]any)
		merged["photos"] = append(append([]any{}, carr...), sarr...)
	} else if sarr, ok := server["photos"].([]any); ok {
		merged["photos"] = sarr
	}

	merged["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(merged)
	if err != nil {
		return models.ResolveResult{}, fmt.Errorf("inspection resolver: marshal: %w", err)
	}
	return models.ResolveResult{Resolved: true, MergedData: data}, nil
}
