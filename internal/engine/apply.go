package engine

import (
	"context"
	"fmt"

	"insp/internal/models"
	"insp/internal/store"
)

// Applier executes a single change against the entity store. Rows are
// stamped with the change's logical timestamp, not apply-time wall
// clock, so a replayed sync collects nothing it already applied.
type Applier struct {
	entities store.EntityStore
}

// NewApplier creates an Applier over the given entity store.
func NewApplier(entities store.EntityStore) *Applier {
	return &Applier{entities: entities}
}

// Apply dispatches a change to the store. Unknown entity types and
// operations are errors, never silent no-ops.
func (a *Applier) Apply(ctx context.Context, change models.Change) error {
	if !models.ValidEntityType(change.EntityType) {
		return fmt.Errorf("apply: unknown entity type %q", change.EntityType)
	}
	if change.EntityID == "" {
		return fmt.Errorf("apply: empty entity id for %q change", change.Operation)
	}

	switch change.Operation {
	case models.OpCreate:
		return a.entities.Create(ctx, change.EntityType, store.Entity{
			ID:        change.EntityID,
			Data:      change.Payload,
			OwnerID:   change.OriginUserID,
			CreatedBy: change.OriginUserID,
			CreatedAt: change.Timestamp,
			UpdatedAt: change.Timestamp,
		})
	case models.OpUpdate:
		return a.entities.Update(ctx, change.EntityType, change.EntityID, change.Payload, change.Timestamp)
	case models.OpDelete:
		return a.entities.SoftDelete(ctx, change.EntityType, change.EntityID, change.OriginUserID, change.Timestamp)
	default:
		return fmt.Errorf("apply: unknown operation %q", change.Operation)
	}
}
