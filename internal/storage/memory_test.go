package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chrissnell/sebal/internal/database"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new"} {
		if err := m.SaveRun(ctx, database.Run{ID: id, Status: database.RunRunning, StartedAt: t0.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.SaveRun(ctx, database.Run{ID: "old", Status: database.RunCompleted, StartedAt: t0}); err != nil {
		t.Fatal(err)
	}

	runs, err := m.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "new" {
		t.Fatalf("ListRuns = %+v", runs)
	}
	if r, _ := m.GetRun(ctx, "old"); r.Status != database.RunCompleted {
		t.Errorf("run not replaced: %+v", r)
	}
	if runs, _ := m.ListRuns(ctx, 1); len(runs) != 1 {
		t.Errorf("limit ignored: %d runs", len(runs))
	}
	if _, err := m.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing run: %v", err)
	}

	later := database.SceneResult{RunID: "new", SceneID: "b", Acquired: t0.AddDate(0, 0, 16), Payload: []byte{1}}
	earlier := database.SceneResult{RunID: "new", SceneID: "a", Acquired: t0, Payload: []byte{2}}
	for _, r := range []database.SceneResult{later, earlier, earlier} {
		if err := m.SaveResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	results, err := m.ListResults(ctx, "new")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].SceneID != "a" || results[0].Payload != nil {
		t.Errorf("ListResults = %+v", results)
	}

	got, err := m.GetResult(ctx, "new", "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Payload) != 1 || got.Payload[0] != 1 {
		t.Errorf("payload lost: %v", got.Payload)
	}
	if _, err := m.GetResult(ctx, "new", "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing scene: %v", err)
	}

	if err := m.SaveSkip(ctx, database.SceneSkip{RunID: "new", SceneID: "c", Reason: "endmember_unavailable"}); err != nil {
		t.Fatal(err)
	}
	skips, _ := m.ListSkips(ctx, "new")
	if len(skips) != 1 || skips[0].CreatedAt.IsZero() {
		t.Errorf("ListSkips = %+v", skips)
	}
}
