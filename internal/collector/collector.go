package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"insp/internal/models"
	"insp/internal/store"
)

// Collector retrieves server-side mutations after a watermark and
// normalizes them into Changes.
type Collector struct {
	entities store.EntityStore
}

// New creates a Collector over the given entity store.
func New(entities store.EntityStore) *Collector {
	return &Collector{entities: entities}
}

// CollectServerChanges gathers mutations visible to userID across the
// requested entity types (the full fixed set when types is empty),
// sorted ascending by timestamp. Any single type's lookup failure
// aborts the whole collection: syncing against a partial server-change
// view is unsafe.
func (c *Collector) CollectServerChanges(ctx context.Context, userID string, since time.Time, types []models.EntityType) ([]models.Change, error) {
	if len(types) == 0 {
		types = models.EntityTypes
	}

	var changes []models.Change
	for _, et := range types {
		if !models.ValidEntityType(et) {
			return nil, fmt.Errorf("collect: unknown entity type %q", et)
		}
		entities, err := c.entities.FindModifiedSince(ctx, et, since, userID)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", et, err)
		}
		for _, e := range entities {
			changes = append(changes, toChange(et, e, since))
		}
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Timestamp.Before(changes[j].Timestamp)
	})
	return changes, nil
}

// toChange classifies an entity row into a Change: delete when the row
// carries a soft-delete marker, create when it was born after the
// watermark, update otherwise.
func toChange(et models.EntityType, e store.Entity, since time.Time) models.Change {
	op := models.OpUpdate
	switch {
	case e.DeletedAt != nil:
		op = models.OpDelete
	case e.CreatedAt.After(since):
		op = models.OpCreate
	}

	return models.Change{
		ID:             fmt.Sprintf("srv-%s-%s-%d", et, e.ID, e.UpdatedAt.UnixNano()),
		EntityType:     et,
		EntityID:       e.ID,
		Operation:      op,
		Payload:        e.Data,
		Timestamp:      e.UpdatedAt,
		OriginDeviceID: models.ServerOrigin,
		OriginUserID:   e.CreatedBy,
	}
}
