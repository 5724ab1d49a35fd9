package collector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"insp/internal/models"
	"insp/internal/store"
)

// fakeEntities serves canned rows per entity type.
type fakeEntities struct {
	rows map[models.EntityType][]store.Entity
	errs map[models.EntityType]error
}

func (f *fakeEntities) Create(ctx context.Context, et models.EntityType, e store.Entity) error {
	return nil
}

func (f *fakeEntities) Update(ctx context.Context, et models.EntityType, id string, data json.RawMessage, modifiedAt time.Time) error {
	return nil
}

func (f *fakeEntities) SoftDelete(ctx context.Context, et models.EntityType, id, actingUserID string, when time.Time) error {
	return nil
}

func (f *fakeEntities) FindModifiedSince(ctx context.Context, et models.EntityType, since time.Time, userID string) ([]store.Entity, error) {
	if err := f.errs[et]; err != nil {
		return nil, err
	}
	return f.rows[et], nil
}

func at(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestCollectClassifiesOperations(t *testing.T) {
	since := at(10)
	deleted := at(20)
	fake := &fakeEntities{rows: map[models.EntityType][]store.Entity{
		models.EntityInspection: {
			// Born after the watermark: create.
			{ID: "new", Data: json.RawMessage(`{}`), CreatedAt: at(15), UpdatedAt: at(15)},
			// Born before, touched after: update.
			{ID: "old", Data: json.RawMessage(`{}`), CreatedAt: at(1), UpdatedAt: at(18)},
			// Soft-deleted: delete, regardless of creation time.
			{ID: "gone", Data: json.RawMessage(`{}`), CreatedAt: at(12), UpdatedAt: at(20), DeletedAt: &deleted},
		},
	}}

	got, err := New(fake).CollectServerChanges(context.Background(), "u1", since, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("changes = %d, want 3", len(got))
	}

	ops := map[string]models.Operation{}
	for _, ch := range got {
		ops[ch.EntityID] = ch.Operation
		if ch.OriginDeviceID != models.ServerOrigin {
			t.Errorf("%s: origin = %q, want server", ch.EntityID, ch.OriginDeviceID)
		}
	}
	if ops["new"] != models.OpCreate || ops["old"] != models.OpUpdate || ops["gone"] != models.OpDelete {
		t.Errorf("wrong classification: %v", ops)
	}
}

func TestCollectSortsAscendingAcrossTypes(t *testing.T) {
	fake := &fakeEntities{rows: map[models.EntityType][]store.Entity{
		models.EntityInspection: {
			{ID: "i1", Data: json.RawMessage(`{}`), CreatedAt: at(1), UpdatedAt: at(30)},
		},
		models.EntityAsset: {
			{ID: "a1", Data: json.RawMessage(`{}`), CreatedAt: at(1), UpdatedAt: at(20)},
		},
		models.EntityFolder: {
			{ID: "f1", Data: json.RawMessage(`{}`), CreatedAt: at(1), UpdatedAt: at(25)},
		},
	}}

	got, err := New(fake).CollectServerChanges(context.Background(), "u1", at(10), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("changes = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("not sorted: %v before %v", got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestCollectRestrictsToRequestedTypes(t *testing.T) {
	fake := &fakeEntities{rows: map[models.EntityType][]store.Entity{
		models.EntityInspection: {{ID: "i1", Data: json.RawMessage(`{}`), CreatedAt: at(1), UpdatedAt: at(20)}},
		models.EntityAsset:      {{ID: "a1", Data: json.RawMessage(`{}`), CreatedAt: at(1), UpdatedAt: at(20)}},
	}}

	got, err := New(fake).CollectServerChanges(context.Background(), "u1", at(10),
		[]models.EntityType{models.EntityAsset})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].EntityID != "a1" {
		t.Fatalf("expected only asset changes, got %+v", got)
	}
}

func TestCollectFailsFastOnStoreError(t *testing.T) {
	boom := errors.New("disk on fire")
	fake := &fakeEntities{
		rows: map[models.EntityType][]store.Entity{
			models.EntityInspection: {{ID: "i1", Data: json.RawMessage(`{}`), CreatedAt: at(1), UpdatedAt: at(20)}},
		},
		errs: map[models.EntityType]error{models.EntityAsset: boom},
	}

	_, err := New(fake).CollectServerChanges(context.Background(), "u1", at(10), nil)
	if err == nil {
		t.Fatal("expected error when one type's lookup fails")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error not wrapped: %v", err)
	}
}

func TestCollectUnknownType(t *testing.T) {
	fake := &fakeEntities{}
	_, err := New(fake).CollectServerChanges(context.Background(), "u1", at(0),
		[]models.EntityType{"gadget"})
	if err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}
