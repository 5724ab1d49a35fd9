package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"insp/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	s, err := NewWithDB(conn)
	if err != nil {
		t.Fatalf("init test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 10, 0, sec, 0, time.UTC)
}

// --- Entity tests ---

func TestCreateAndGetEntity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Create(ctx, models.EntityInspection, Entity{
		ID:        "ins-1",
		Data:      json.RawMessage(`{"status":"draft"}`),
		OwnerID:   "u1",
		CreatedBy: "u1",
		CreatedAt: ts(0),
		UpdatedAt: ts(0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e, err := s.GetEntity(ctx, models.EntityInspection, "ins-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e == nil {
		t.Fatal("expected entity, got nil")
	}
	if e.OwnerID != "u1" || string(e.Data) != `{"status":"draft"}` {
		t.Errorf("unexpected entity: %+v", e)
	}
	if !e.UpdatedAt.Equal(ts(0)) {
		t.Errorf("updated_at = %v, want %v", e.UpdatedAt, ts(0))
	}
}

func TestCreateRejectsInvalidPayload(t *testing.T) {
	s := newTestStore(t)
	err := s.Create(context.Background(), models.EntityAsset, Entity{
		ID:   "a1",
		Data: json.RawMessage(`{not json`),
	})
	if err == nil {
		t.Fatal("expected error for invalid JSON payload")
	}
}

func TestCreateUnknownEntityType(t *testing.T) {
	s := newTestStore(t)
	err := s.Create(context.Background(), "widget", Entity{ID: "w1", Data: json.RawMessage(`{}`)})
	if err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

func TestUpdateUpsertsMissingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Update(ctx, models.EntityFolder, "f1", json.RawMessage(`{"name":"ops"}`), ts(5)); err != nil {
		t.Fatalf("update: %v", err)
	}
	e, err := s.GetEntity(ctx, models.EntityFolder, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || string(e.Data) != `{"name":"ops"}` {
		t.Fatalf("row not upserted: %+v", e)
	}
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, models.EntityFolder, Entity{
		ID: "f1", Data: json.RawMessage(`{"name":"a"}`), CreatedAt: ts(0), UpdatedAt: ts(0),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, models.EntityFolder, "f1", json.RawMessage(`{"name":"b"}`), ts(10)); err != nil {
		t.Fatal(err)
	}

	e, _ := s.GetEntity(ctx, models.EntityFolder, "f1")
	if !e.CreatedAt.Equal(ts(0)) {
		t.Errorf("created_at changed: %v", e.CreatedAt)
	}
	if !e.UpdatedAt.Equal(ts(10)) {
		t.Errorf("updated_at = %v, want %v", e.UpdatedAt, ts(10))
	}
}

func TestSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, models.EntityAsset, Entity{
		ID: "a1", Data: json.RawMessage(`{}`), CreatedAt: ts(0), UpdatedAt: ts(0),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SoftDelete(ctx, models.EntityAsset, "a1", "u1", ts(3)); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	e, _ := s.GetEntity(ctx, models.EntityAsset, "a1")
	if e.DeletedAt == nil {
		t.Fatal("deleted_at not set")
	}
	if !e.DeletedAt.Equal(ts(3)) {
		t.Errorf("deleted_at = %v, want %v", e.DeletedAt, ts(3))
	}
}

func TestFindModifiedSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"i1", "i2", "i3"} {
		if err := s.Create(ctx, models.EntityInspection, Entity{
			ID: id, Data: json.RawMessage(`{}`), OwnerID: "u1",
			CreatedAt: ts(i), UpdatedAt: ts(i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.FindModifiedSince(ctx, models.EntityInspection, ts(0), "u1")
	if err != nil {
		t.Fatalf("find modified: %v", err)
	}
	// Strictly after since: i1 at ts(0) excluded.
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].ID != "i2" || got[1].ID != "i3" {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestFindModifiedSinceOwnerVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, models.EntityInspection, Entity{
		ID: "mine", Data: json.RawMessage(`{}`), OwnerID: "u1", CreatedAt: ts(1), UpdatedAt: ts(1)})
	s.Create(ctx, models.EntityInspection, Entity{
		ID: "theirs", Data: json.RawMessage(`{}`), OwnerID: "u2", CreatedAt: ts(1), UpdatedAt: ts(1)})
	s.Create(ctx, models.EntityInspection, Entity{
		ID: "shared", Data: json.RawMessage(`{}`), CreatedAt: ts(1), UpdatedAt: ts(1)})

	got, err := s.FindModifiedSince(ctx, models.EntityInspection, ts(0), "u1")
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, e := range got {
		ids[e.ID] = true
	}
	if !ids["mine"] || !ids["shared"] || ids["theirs"] {
		t.Errorf("visibility wrong: %v", ids)
	}
}

// --- Sync state tests ---

func TestLastSyncRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetLastSync(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil watermark for fresh pair, got %v", got)
	}

	want := ts(42)
	if err := s.SetLastSync(ctx, "u1", "d1", want); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetLastSync(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(want) {
		t.Errorf("watermark = %v, want %v", got, want)
	}

	// Watermarks are per device.
	other, _ := s.GetLastSync(ctx, "u1", "d2")
	if other != nil {
		t.Errorf("device d2 should have no watermark, got %v", other)
	}
}

// --- Queue tests ---

func TestOfflineQueueRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q, err := s.GetOfflineQueue(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if q != nil {
		t.Fatal("expected nil queue before save")
	}

	in := &models.OfflineQueue{
		UserID:   "u1",
		DeviceID: "d1",
		Operations: []models.Change{{
			ID: "ch-1", EntityType: models.EntityInspection, EntityID: "i1",
			Operation: models.OpUpdate, Payload: json.RawMessage(`{"x":1}`),
			Timestamp: ts(1), OriginDeviceID: "d1", OriginUserID: "u1",
		}},
		LastUpdated: ts(2),
	}
	if err := s.SaveOfflineQueue(ctx, in); err != nil {
		t.Fatal(err)
	}

	q, err = s.GetOfflineQueue(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Operations) != 1 || q.Operations[0].ID != "ch-1" {
		t.Fatalf("queue round trip lost operations: %+v", q)
	}

	all, err := s.ListOfflineQueues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("list queues = %d, want 1", len(all))
	}

	if err := s.ClearOfflineQueue(ctx, "u1", "d1"); err != nil {
		t.Fatal(err)
	}
	q, _ = s.GetOfflineQueue(ctx, "u1", "d1")
	if q != nil {
		t.Error("queue not cleared")
	}
}

// --- Batch and conflict tests ---

func testConflict(id string) models.SyncConflict {
	server := models.Change{
		ID: "srv-1", EntityType: models.EntityInspection, EntityID: "i1",
		Operation: models.OpUpdate, Payload: json.RawMessage(`{"v":"server"}`),
		Timestamp: ts(8), OriginDeviceID: models.ServerOrigin,
	}
	return models.SyncConflict{
		ID:         id,
		EntityType: models.EntityInspection,
		EntityID:   "i1",
		ClientChange: models.Change{
			ID: "ch-1", EntityType: models.EntityInspection, EntityID: "i1",
			Operation: models.OpUpdate, Payload: json.RawMessage(`{"v":"client"}`),
			Timestamp: ts(5), OriginDeviceID: "d1", OriginUserID: "u1",
		},
		ServerChange: &server,
		DetectedAt:   ts(9),
		UserID:       "u1",
		Status:       models.ConflictPending,
	}
}

func TestSaveBatchWithConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := &models.SyncBatch{
		ID:        "sy-1",
		UserID:    "u1",
		DeviceID:  "d1",
		Timestamp: ts(10),
		Operations: []models.SyncOperation{{
			Change: models.Change{
				ID: "ch-2", EntityType: models.EntityAsset, EntityID: "a1",
				Operation: models.OpCreate, Payload: json.RawMessage(`{}`), Timestamp: ts(4),
			},
			Status:    models.OperationCompleted,
			AppliedAt: ts(10),
		}},
		Conflicts: []models.SyncConflict{testConflict("cf-1")},
		Metadata:  models.BatchMetadata{Strategy: models.StrategyServerWins},
	}
	if err := s.SaveSyncBatch(ctx, batch); err != nil {
		t.Fatalf("save batch: %v", err)
	}

	got, err := s.ListRecentBatches(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("batches = %d, want 1", len(got))
	}
	b := got[0]
	if len(b.Operations) != 1 || b.Operations[0].Change.ID != "ch-2" {
		t.Errorf("operations lost: %+v", b.Operations)
	}
	if len(b.Conflicts) != 1 || b.Conflicts[0].ID != "cf-1" {
		t.Fatalf("conflicts lost: %+v", b.Conflicts)
	}
	if b.Conflicts[0].ServerChange == nil || string(b.Conflicts[0].ServerChange.Payload) != `{"v":"server"}` {
		t.Errorf("server change lost: %+v", b.Conflicts[0].ServerChange)
	}
	if b.Metadata.Strategy != models.StrategyServerWins {
		t.Errorf("metadata strategy = %q", b.Metadata.Strategy)
	}
}

func TestConflictLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := &models.SyncBatch{
		ID: "sy-1", UserID: "u1", DeviceID: "d1", Timestamp: ts(10),
		Conflicts: []models.SyncConflict{testConflict("cf-1")},
	}
	if err := s.SaveSyncBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	pending, err := s.ListPendingConflicts(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	if err := s.MarkConflictResolved(ctx, "cf-1", models.StrategyClientWins, "u1"); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}

	c, err := s.GetConflict(ctx, "cf-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != models.ConflictResolved {
		t.Errorf("status = %q, want resolved", c.Status)
	}
	if c.Resolution == nil || *c.Resolution != models.StrategyClientWins {
		t.Errorf("resolution = %v", c.Resolution)
	}

	pending, _ = s.ListPendingConflicts(ctx, "u1")
	if len(pending) != 0 {
		t.Errorf("still pending after resolve: %d", len(pending))
	}

	// Second resolve must fail.
	if err := s.MarkConflictResolved(ctx, "cf-1", models.StrategyMerge, "u1"); err == nil {
		t.Error("expected error resolving twice")
	}
}

func TestGetConflictMissing(t *testing.T) {
	s := newTestStore(t)
	c, err := s.GetConflict(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing conflict, got %+v", c)
	}
}

func TestInsertAuditEntry(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertAuditEntry(context.Background(), "sy-1", "u1", "d1", "success", 3, 1, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("insert audit: %v", err)
	}

	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE sync_id = 'sy-1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("audit rows = %d, want 1", count)
	}
}
