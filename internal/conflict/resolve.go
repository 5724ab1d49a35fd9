package conflict

import (
	"encoding/json"
	"fmt"
	"time"

	"insp/internal/models"
)

// Func is a custom per-entity-type resolver. It receives the full
// conflict and returns the same result shape as strategy dispatch.
type Func func(c models.SyncConflict) (models.ResolveResult, error)

// Resolver picks winning payloads for conflicts. Custom per-entity-type
// resolvers are injected at construction and take precedence over
// strategy dispatch, except when the caller supplies an explicit merged
// payload (a manual resolution decision must not be overridden).
type Resolver struct {
	custom map[models.EntityType]Func
	now    func() time.Time
}

// NewResolver creates a Resolver with the given custom resolver
// registry. A nil map means strategy dispatch only.
func NewResolver(custom map[models.EntityType]Func) *Resolver {
	return &Resolver{custom: custom, now: time.Now}
}

// Default returns a Resolver with the built-in custom resolvers
// registered (currently just inspections).
func Default() *Resolver {
	return NewResolver(map[models.EntityType]Func{
		models.EntityInspection: resolveInspection,
	})
}

// Resolve applies a resolution strategy to a conflict. An unsupported
// strategy is an error; manual and server_wins-without-server-change
// return resolved=false without error.
func (r *Resolver) Resolve(c models.SyncConflict, strategy models.Strategy, mergedPayload json.RawMessage) (models.ResolveResult, error) {
	if !models.ValidStrategy(strategy) {
		return models.ResolveResult{}, fmt.Errorf("unsupported resolution strategy: %q", strategy)
	}

	// Manual always defers to an out-of-band resolution call, even for
	// entity types with a custom resolver.
	if strategy == models.StrategyManual {
		return models.ResolveResult{Resolved: false}, nil
	}

	if mergedPayload == nil {
		if fn, ok := r.custom[c.EntityType]; ok {
			return fn(c)
		}
	}

	switch strategy {
	case models.StrategyClientWins:
		return models.ResolveResult{Resolved: true, MergedData: c.ClientChange.Payload}, nil

	case models.StrategyServerWins:
		if c.ServerChange == nil {
			return models.ResolveResult{
				Resolved: false,
				Error:    "server_wins: conflict has no server change",
			}, nil
		}
		return models.ResolveResult{Resolved: true, MergedData: c.ServerChange.Payload}, nil

	case models.StrategyMerge:
		if mergedPayload != nil {
			return models.ResolveResult{Resolved: true, MergedData: mergedPayload}, nil
		}
		merged, err := r.defaultMerge(c)
		if err != nil {
			return models.ResolveResult{Resolved: false, Error: err.Error()}, nil
		}
		return models.ResolveResult{Resolved: true, MergedData: merged}, nil
	}

	return models.ResolveResult{}, fmt.Errorf("unsupported resolution strategy: %q", strategy)
}

// defaultMerge starts from the client payload, overlays the server's
// system fields, stamps updated_at, and unions array fields present on
// both sides by item identity.
func (r *Resolver) defaultMerge(c models.SyncConflict) (json.RawMessage, error) {
	client, err := decodePayload(c.ClientChange.Payload)
	if err != nil {
		return nil, fmt.Errorf("merge: client payload: %w", err)
	}

	var server map[string]any
	if c.ServerChange != nil {
		server, err = decodePayload(c.ServerChange.Payload)
		if err != nil {
			return nil, fmt.Errorf("merge: server payload: %w", err)
		}
	}

	merged := make(map[string]any, len(client))
	for k, v := range client {
		merged[k] = v
	}

	for _, k := range []string{"id", "created_at", "created_by"} {
		if v, ok := server[k]; ok {
			merged[k] = v
		}
	}

	for k, sv := range server {
		sarr, sok := sv.([]any)
		if !sok {
			continue
		}
		carr, cok := merged[k].([]any)
		if !cok {
			continue
		}
		merged[k] = unionByID(carr, sarr)
	}

	merged["updated_at"] = r.now().UTC().Format(time.RFC3339Nano)

	return json.Marshal(merged)
}

// unionByID keeps all client items and appends server items whose "id"
// is absent from the client slice. Items without an id are kept as-is.
func unionByID(client, server []any) []any {
	seen := make(map[any]bool, len(client))
	for _, item := range client {
		if m, ok := item.(map[string]any); ok {
			if id, ok := m["id"]; ok {
				seen[id] = true
			}
		}
	}

	out := append([]any{}, client...)
	for _, item := range server {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := m["id"]
		if !ok || !seen[id] {
			out = append(out, item)
		}
	}
	return out
}

func decodePayload(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
