package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insp/internal/models"
)

// Entity is one row from an entity table: an opaque JSON snapshot plus
// the system fields the sync engine needs.
type Entity struct {
	ID        string
	Data      json.RawMessage
	OwnerID   string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// EntityStore is the external entity store contract, one logical store
// per entity type. Update and Create are idempotent upserts; the caller
// supplies the logical mutation time so rows carry change timestamps
// rather than apply-time wall clock.
type EntityStore interface {
	Create(ctx context.Context, et models.EntityType, e Entity) error
	Update(ctx context.Context, et models.EntityType, id string, data json.RawMessage, modifiedAt time.Time) error
	SoftDelete(ctx context.Context, et models.EntityType, id, actingUserID string, when time.Time) error
	FindModifiedSince(ctx context.Context, et models.EntityType, since time.Time, userID string) ([]Entity, error)
}

// SyncStore persists sync session outcomes: watermarks, batches,
// conflicts, and offline queues.
type SyncStore interface {
	GetLastSync(ctx context.Context, userID, deviceID string) (*time.Time, error)
	SetLastSync(ctx context.Context, userID, deviceID string, t time.Time) error

	SaveSyncBatch(ctx context.Context, batch *models.SyncBatch) error
	ListRecentBatches(ctx context.Context, userID string, limit int) ([]models.SyncBatch, error)

	SaveOfflineQueue(ctx context.Context, q *models.OfflineQueue) error
	GetOfflineQueue(ctx context.Context, userID, deviceID string) (*models.OfflineQueue, error)
	ClearOfflineQueue(ctx context.Context, userID, deviceID string) error
	ListOfflineQueues(ctx context.Context) ([]models.OfflineQueue, error)

	GetConflict(ctx context.Context, id string) (*models.SyncConflict, error)
	ListPendingConflicts(ctx context.Context, userID string) ([]models.SyncConflict, error)
	MarkConflictResolved(ctx context.Context, id string, resolution models.Strategy, resolvedBy string) error
}

// entityTables maps entity types to their table names. Only names from
// this map are ever interpolated into SQL.
var entityTables = map[models.EntityType]string{
	models.EntityInspection:   "inspections",
	models.EntityAsset:        "assets",
	models.EntityFormTemplate: "form_templates",
	models.EntityFolder:       "folders",
	models.EntityUser:         "users",
}

// tableFor returns the table name for an entity type, or an error for
// anything outside the fixed set.
func tableFor(et models.EntityType) (string, error) {
	t, ok := entityTables[et]
	if !ok {
		return "", fmt.Errorf("unknown entity type: %q", et)
	}
	return t, nil
}

// parseTimestamp tries common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05 -0700 -0700",
		"2006-01-02 15:04:05 -0700 MST",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
