package conflict

import (
	"encoding/json"
	"testing"
	"time"

	"insp/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

func newTestResolver() *Resolver {
	r := NewResolver(nil)
	r.now = fixedNow
	return r
}

func conflictOf(et models.EntityType, clientPayload, serverPayload string) models.SyncConflict {
	c := models.SyncConflict{
		ID:         "cf-1",
		EntityType: et,
		EntityID:   "e1",
		ClientChange: models.Change{
			ID: "ch-1", EntityType: et, EntityID: "e1",
			Operation: models.OpUpdate,
			Payload:   json.RawMessage(clientPayload),
			Timestamp: at(5),
		},
		DetectedAt: at(9),
		UserID:     "u1",
		Status:     models.ConflictPending,
	}
	if serverPayload != "" {
		sc := models.Change{
			ID: "srv-1", EntityType: et, EntityID: "e1",
			Operation: models.OpUpdate,
			Payload:   json.RawMessage(serverPayload),
			Timestamp: at(8),
		}
		c.ServerChange = &sc
	}
	return c
}

func TestResolveClientWins(t *testing.T) {
	r := newTestResolver()
	c := conflictOf(models.EntityAsset, `{"v":"client"}`, `{"v":"server"}`)

	res, err := r.Resolve(c, models.StrategyClientWins, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resolved {
		t.Fatal("client_wins must resolve")
	}
	if string(res.MergedData) != `{"v":"client"}` {
		t.Errorf("merged = %s, want client payload", res.MergedData)
	}
}

func TestResolveServerWins(t *testing.T) {
	r := newTestResolver()
	c := conflictOf(models.EntityAsset, `{"v":"client"}`, `{"v":"server"}`)

	res, err := r.Resolve(c, models.StrategyServerWins, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resolved {
		t.Fatal("server_wins must resolve when a server change exists")
	}
	if string(res.MergedData) != `{"v":"server"}` {
		t.Errorf("merged = %s, want server payload", res.MergedData)
	}
}

func TestResolveServerWinsWithoutServerChange(t *testing.T) {
	r := newTestResolver()
	c := conflictOf(models.EntityAsset, `{"v":"client"}`, "")

	res, err := r.Resolve(c, models.StrategyServerWins, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resolved {
		t.Fatal("server_wins without a server change must not resolve")
	}
	if res.Error == "" {
		t.Error("expected an explanatory error message")
	}
}

func TestResolveManualNeverResolves(t *testing.T) {
	r := newTestResolver()
	c := conflictOf(models.EntityAsset, `{"v":"client"}`, `{"v":"server"}`)

	res, err := r.Resolve(c, models.StrategyManual, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resolved {
		t.Fatal("manual must leave the conflict unresolved")
	}
	if res.Error != "" {
		t.Errorf("manual should carry no error, got %q", res.Error)
	}
}

func TestResolveUnknownStrategy(t *testing.T) {
	r := newTestResolver()
	c := conflictOf(models.EntityAsset, `{}`, `{}`)

	if _, err := r.Resolve(c, "coin_flip", nil); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestDefaultMergeSystemFieldsAndArrays(t *testing.T) {
	r := newTestResolver()
	c := conflictOf(models.EntityFolder,
		`{"name":"client","created_at":"T5","items":[{"id":1},{"id":2}]}`,
		`{"name":"server","created_at":"T0","created_by":"u0","items":[{"id":2},{"id":3}]}`)

	res, err := r.Resolve(c, models.StrategyMerge, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resolved {
		t.Fatalf("merge should resolve: %s", res.Error)
	}

	var m map[string]any
	if err := json.Unmarshal(res.MergedData, &m); err != nil {
		t.Fatal(err)
	}
	// Client fields win, server system fields overlay.
	if m["name"] != "client" {
		t.Errorf("name = %v, want client value", m["name"])
	}
	if m["created_at"] != "T0" || m["created_by"] != "u0" {
		t.Errorf("server system fields not preserved: %v %v", m["created_at"], m["created_by"])
	}
	// Arrays union by id: 1, 2 from client plus 3 from server.
	items := m["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3 (union)", len(items))
	}
	if m["updated_at"] != fixedNow().Format(time.RFC3339Nano) {
		t.Errorf("updated_at not stamped: %v", m["updated_at"])
	}
}

func TestMergeExplicitPayloadWins(t *testing.T) {
	r := newTestResolver()
	c := conflictOf(models.EntityAsset, `{"v":"client"}`, `{"v":"server"}`)

	res, err := r.Resolve(c, models.StrategyMerge, json.RawMessage(`{"v":"handpicked"}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(res.MergedData) != `{"v":"handpicked"}` {
		t.Errorf("explicit merged payload ignored: %s", res.MergedData)
	}
}

func TestCustomResolverPrecedence(t *testing.T) {
	called := false
	r := NewResolver(map[models.EntityType]Func{
		models.EntityAsset: func(c models.SyncConflict) (models.ResolveResult, error) {
			called = true
			return models.ResolveResult{Resolved: true, MergedData: json.RawMessage(`{"custom":true}`)}, nil
		},
	})
	c := conflictOf(models.EntityAsset, `{"v":"client"}`, `{"v":"server"}`)

	res, err := r.Resolve(c, models.StrategyServerWins, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("custom resolver not invoked")
	}
	if string(res.MergedData) != `{"custom":true}` {
		t.Errorf("merged = %s", res.MergedData)
	}
}

func TestCustomResolverSkippedForExplicitPayload(t *testing.T) {
	r := NewResolver(map[models.EntityType]Func{
		models.EntityAsset: func(c models.SyncConflict) (models.ResolveResult, error) {
			t.Fatal("custom resolver must not run when a merged payload is supplied")
			return models.ResolveResult{}, nil
		},
	})
	c := conflictOf(models.EntityAsset, `{"v":"client"}`, `{"v":"server"}`)

	res, err := r.Resolve(c, models.StrategyMerge, json.RawMessage(`{"v":"picked"}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(res.MergedData) != `{"v":"picked"}` {
		t.Errorf("merged = %s", res.MergedData)
	}
}

func TestCustomResolverSkippedForManual(t *testing.T) {
	r := NewResolver(map[models.EntityType]Func{
		models.EntityAsset: func(c models.SyncConflict) (models.ResolveResult, error) {
			t.Fatal("custom resolver must not run under manual")
			return models.ResolveResult{}, nil
		},
	})
	c := conflictOf(models.EntityAsset, `{"v":"client"}`, `{"v":"server"}`)

	res, err := r.Resolve(c, models.StrategyManual, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resolved {
		t.Error("manual must always return resolved=false")
	}

	// Same holds for the built-in inspection resolver.
	ic := conflictOf(models.EntityInspection, `{"responses":[]}`, `{"responses":[]}`)
	res, err = Default().Resolve(ic, models.StrategyManual, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resolved {
		t.Error("manual inspection conflict must stay unresolved")
	}
}

func TestInspectionResolverMergesResponsesAndPhotos(t *testing.T) {
	r := Default()
	c := conflictOf(models.EntityInspection,
		`{"status":"done","responses":[{"id":"q1","answer":"yes"}],"photos":["c.jpg"]}`,
		`{"status":"draft","reviewer":"u9","responses":[{"id":"q1","answer":"old"},{"id":"q2","answer":"no"}],"photos":["s.jpg"]}`)

	res, err := r.Resolve(c, models.StrategyServerWins, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resolved {
		t.Fatalf("inspection resolver should resolve: %s", res.Error)
	}

	var m map[string]any
	if err := json.Unmarshal(res.MergedData, &m); err != nil {
		t.Fatal(err)
	}
	if m["status"] != "done" {
		t.Errorf("client field should win: status = %v", m["status"])
	}
	if m["reviewer"] != "u9" {
		t.Errorf("server-only field lost: %v", m["reviewer"])
	}
	responses := m["responses"].([]any)
	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2 (client q1 + server q2)", len(responses))
	}
	first := responses[0].(map[string]any)
	if first["answer"] != "yes" {
		t.Errorf("client answer should win: %v", first["answer"])
	}
	photos := m["photos"].([]any)
	if len(photos) != 2 {
		t.Errorf("photos = %d, want both sides kept", len(photos))
	}
}
