package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/telerpg/internal/types"
)

func newPlayer(subject types.SubjectID) *types.Player {
	now := time.Now()
	return &types.Player{
		ID:            types.NewPlayerID(),
		SubjectID:     subject,
		Name:          "Alice",
		Class:         "Warrior",
		JobClassID:    1,
		Level:         1,
		HP:            80,
		MaxHP:         80,
		Status:        types.StatusIdle,
		Currency:      100,
		CurrentAreaID: 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestPlayerStoreCreateAndGet(t *testing.T) {
	store := NewPlayerStore(t.TempDir())
	ctx := context.Background()

	p := newPlayer("telegram:1")
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetBySubject(ctx, "telegram:1")
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if got.Name != "Alice" || got.Status != types.StatusIdle {
		t.Errorf("unexpected player: %+v", got)
	}
}

func TestPlayerStoreCreateConflict(t *testing.T) {
	store := NewPlayerStore(t.TempDir())
	ctx := context.Background()

	if err := store.Create(ctx, newPlayer("telegram:1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := store.Create(ctx, newPlayer("telegram:1"))
	if !errors.Is(err, types.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPlayerStoreGetMissing(t *testing.T) {
	store := NewPlayerStore(t.TempDir())

	_, err := store.GetBySubject(context.Background(), "telegram:99")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPlayerStoreUpdate(t *testing.T) {
	dir := t.TempDir()
	store := NewPlayerStore(dir)
	ctx := context.Background()

	p := newPlayer("telegram:1")
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	p.Status = types.StatusTravelling
	p.DestinationAreaID = 2
	if err := store.Update(ctx, p); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := NewPlayerStore(dir).GetBySubject(ctx, "telegram:1")
	if err != nil {
		t.Fatalf("GetBySubject after reopen failed: %v", err)
	}
	if got.Status != types.StatusTravelling || got.DestinationAreaID != 2 {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestPlayerStoreApplyCompletionOnce(t *testing.T) {
	store := NewPlayerStore(t.TempDir())
	ctx := context.Background()

	p := newPlayer("telegram:1")
	p.Status = types.StatusTravelling
	p.DestinationAreaID = 2
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	actionID := types.NewActionID()
	arrive := func(pl *types.Player) {
		pl.CurrentAreaID = pl.DestinationAreaID
		pl.DestinationAreaID = 0
		pl.Status = types.StatusIdle
	}

	applied, err := store.ApplyCompletion(ctx, "telegram:1", actionID, arrive)
	if err != nil {
		t.Fatalf("ApplyCompletion failed: %v", err)
	}
	if !applied {
		t.Fatal("expected first apply to report applied")
	}

	// Re-delivery of the same completion is a no-op.
	applied, err = store.ApplyCompletion(ctx, "telegram:1", actionID, func(pl *types.Player) {
		t.Error("mutate must not run on re-delivery")
	})
	if err != nil {
		t.Fatalf("second ApplyCompletion failed: %v", err)
	}
	if applied {
		t.Error("expected second apply to report not applied")
	}

	got, err := store.GetBySubject(ctx, "telegram:1")
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if got.CurrentAreaID != 2 || got.Status != types.StatusIdle {
		t.Errorf("effect not applied exactly once: %+v", got)
	}
	if !got.ActionApplied(actionID) {
		t.Error("expected idempotency marker recorded")
	}
}

func TestPlayerStoreApplyCompletionMissingPlayer(t *testing.T) {
	store := NewPlayerStore(t.TempDir())

	_, err := store.ApplyCompletion(context.Background(), "telegram:99", types.NewActionID(), func(*types.Player) {})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPlayerStoreListEmpty(t *testing.T) {
	store := NewPlayerStore(t.TempDir())

	players, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if players == nil || len(players) != 0 {
		t.Errorf("expected empty slice, got %v", players)
	}
}
