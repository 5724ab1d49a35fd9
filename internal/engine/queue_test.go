package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"insp/internal/models"
)

func TestEnqueueAndPending(t *testing.T) {
	syncs := newMemSyncStore()
	qm := NewQueueManager(syncs)
	ctx := context.Background()

	for i, id := range []string{"a1", "a2"} {
		ch := clientChange(id, models.OpCreate, `{}`, at(i))
		if err := qm.Enqueue(ctx, "u1", "d1", ch); err != nil {
			t.Fatal(err)
		}
	}

	ops, err := qm.Pending(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 || ops[0].EntityID != "a1" || ops[1].EntityID != "a2" {
		t.Fatalf("pending = %+v", ops)
	}

	// Persisted copy matches the cache.
	stored, _ := syncs.GetOfflineQueue(ctx, "u1", "d1")
	if stored == nil || len(stored.Operations) != 2 {
		t.Fatalf("stored queue = %+v", stored)
	}
}

func TestPendingReturnsCopy(t *testing.T) {
	qm := NewQueueManager(newMemSyncStore())
	ctx := context.Background()

	if err := qm.Enqueue(ctx, "u1", "d1", clientChange("a1", models.OpCreate, `{}`, at(1))); err != nil {
		t.Fatal(err)
	}
	ops, _ := qm.Pending(ctx, "u1", "d1")
	ops[0].Payload = json.RawMessage(`{"mutated":true}`)

	again, _ := qm.Pending(ctx, "u1", "d1")
	if string(again[0].Payload) == `{"mutated":true}` {
		t.Error("Pending must return a copy, not the cached slice")
	}
}

func TestEnqueueRollsBackOnSaveFailure(t *testing.T) {
	syncs := newMemSyncStore()
	qm := NewQueueManager(syncs)
	ctx := context.Background()

	if err := qm.Enqueue(ctx, "u1", "d1", clientChange("a1", models.OpCreate, `{}`, at(1))); err != nil {
		t.Fatal(err)
	}

	syncs.queueErr = errors.New("disk full")
	if err := qm.Enqueue(ctx, "u1", "d1", clientChange("a2", models.OpCreate, `{}`, at(2))); err == nil {
		t.Fatal("expected enqueue failure")
	}
	syncs.queueErr = nil

	ops, _ := qm.Pending(ctx, "u1", "d1")
	if len(ops) != 1 {
		t.Errorf("failed enqueue leaked into cache: depth = %d", len(ops))
	}
}

func TestQueueLoadsPersistedState(t *testing.T) {
	syncs := newMemSyncStore()
	ctx := context.Background()

	// Simulate a queue written by a previous process.
	syncs.SaveOfflineQueue(ctx, &models.OfflineQueue{
		UserID:   "u1",
		DeviceID: "d1",
		Operations: []models.Change{
			clientChange("a1", models.OpUpdate, `{}`, at(1)),
		},
		LastUpdated: at(1),
	})

	qm := NewQueueManager(syncs)
	depth, err := qm.Depth(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if depth != 1 {
		t.Errorf("depth = %d, want 1 from persisted state", depth)
	}
}

func TestClearQueue(t *testing.T) {
	syncs := newMemSyncStore()
	qm := NewQueueManager(syncs)
	ctx := context.Background()

	qm.Enqueue(ctx, "u1", "d1", clientChange("a1", models.OpCreate, `{}`, at(1)))
	if err := qm.Clear(ctx, "u1", "d1"); err != nil {
		t.Fatal(err)
	}

	depth, _ := qm.Depth(ctx, "u1", "d1")
	if depth != 0 {
		t.Errorf("depth after clear = %d", depth)
	}
	if q, _ := syncs.GetOfflineQueue(ctx, "u1", "d1"); q != nil {
		t.Error("persisted queue not cleared")
	}
}

func TestClearDrainedKeepsLaterEnqueues(t *testing.T) {
	syncs := newMemSyncStore()
	qm := NewQueueManager(syncs)
	ctx := context.Background()

	for i, id := range []string{"a1", "a2"} {
		if err := qm.Enqueue(ctx, "u1", "d1", clientChange(id, models.OpCreate, `{}`, at(i))); err != nil {
			t.Fatal(err)
		}
	}
	snapshot, err := qm.Pending(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}

	// A third change arrives after the snapshot and must survive.
	if err := qm.Enqueue(ctx, "u1", "d1", clientChange("a3", models.OpCreate, `{}`, at(3))); err != nil {
		t.Fatal(err)
	}

	if err := qm.ClearDrained(ctx, "u1", "d1", snapshot); err != nil {
		t.Fatal(err)
	}

	ops, _ := qm.Pending(ctx, "u1", "d1")
	if len(ops) != 1 || ops[0].EntityID != "a3" {
		t.Fatalf("pending = %+v", ops)
	}
	stored, _ := syncs.GetOfflineQueue(ctx, "u1", "d1")
	if stored == nil || len(stored.Operations) != 1 {
		t.Fatalf("stored queue = %+v", stored)
	}

	// Clearing an already-drained snapshot again is a no-op.
	if err := qm.ClearDrained(ctx, "u1", "d1", snapshot); err != nil {
		t.Fatal(err)
	}
	if depth, _ := qm.Depth(ctx, "u1", "d1"); depth != 1 {
		t.Errorf("depth = %d, repeat drain must not touch later enqueues", depth)
	}

	// Draining the remainder removes the persisted row entirely.
	rest, _ := qm.Pending(ctx, "u1", "d1")
	if err := qm.ClearDrained(ctx, "u1", "d1", rest); err != nil {
		t.Fatal(err)
	}
	if q, _ := syncs.GetOfflineQueue(ctx, "u1", "d1"); q != nil {
		t.Error("fully drained queue should be removed")
	}
}

func TestQueuesAreIsolatedPerPair(t *testing.T) {
	qm := NewQueueManager(newMemSyncStore())
	ctx := context.Background()

	qm.Enqueue(ctx, "u1", "d1", clientChange("a1", models.OpCreate, `{}`, at(1)))
	qm.Enqueue(ctx, "u1", "d2", clientChange("a2", models.OpCreate, `{}`, at(1)))

	d1, _ := qm.Depth(ctx, "u1", "d1")
	d2, _ := qm.Depth(ctx, "u1", "d2")
	if d1 != 1 || d2 != 1 {
		t.Errorf("depths = %d/%d, want 1/1", d1, d2)
	}
}
