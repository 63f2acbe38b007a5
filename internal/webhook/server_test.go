package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/telerpg/internal/game"
	"github.com/user/telerpg/internal/scheduler"
	"github.com/user/telerpg/internal/state"
	"github.com/user/telerpg/internal/types"
)

func newTestServer(t *testing.T) (*Server, *state.Stores, *scheduler.Scheduler) {
	t.Helper()
	stores, err := state.Open(context.Background(), t.TempDir(), "")
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	sched := scheduler.New(stores.Actions, func(context.Context, *types.ScheduledAction) error { return nil })
	t.Cleanup(sched.Stop)
	return NewServer(stores.Players, stores.Actions, stores.Journal, sched), stores, sched
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected ok, got %v", body)
	}
}

func TestListPlayers(t *testing.T) {
	srv, stores, _ := newTestServer(t)
	ctx := context.Background()

	p, err := game.NewPlayer("telegram:1", types.FieldValues{
		"name": "Alice", "class": "Rogue",
		"strength": "3", "intelligence": "2", "dexterity": "3", "constitution": "2",
	})
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	if err := stores.Players.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/players", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var players []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &players); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(players) != 1 || players[0]["name"] != "Alice" {
		t.Errorf("unexpected players payload: %v", players)
	}
}

func TestListPendingActions(t *testing.T) {
	srv, _, sched := newTestServer(t)
	ctx := context.Background()

	action, err := sched.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement,
		game.TravelPayload{DestinationAreaID: 2}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/actions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var actions []*types.ScheduledAction
	if err := json.Unmarshal(rec.Body.Bytes(), &actions); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(actions) != 1 || actions[0].ID != action.ID {
		t.Errorf("unexpected actions payload: %+v", actions)
	}
}

func TestCancelAction(t *testing.T) {
	srv, stores, sched := newTestServer(t)
	ctx := context.Background()

	action, err := sched.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement,
		game.TravelPayload{DestinationAreaID: 2}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/actions/"+string(action.ID)+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := stores.Actions.Get(ctx, action.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != types.ActionCancelled {
		t.Errorf("expected cancelled, got %s", got.State)
	}

	// Cancelling again is a 404: the action is no longer pending.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/actions/"+string(action.ID)+"/cancel", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second cancel, got %d", rec.Code)
	}
}

func TestCancelActionReleasesPlayer(t *testing.T) {
	srv, stores, sched := newTestServer(t)
	ctx := context.Background()

	p, err := game.NewPlayer("telegram:1", types.FieldValues{
		"name": "Alice", "class": "Warrior",
		"strength": "3", "intelligence": "2", "dexterity": "3", "constitution": "2",
	})
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	p.Status = types.StatusTravelling
	p.DestinationAreaID = 2
	if err := stores.Players.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	action, err := sched.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement,
		game.TravelPayload{DestinationAreaID: 2}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/actions/"+string(action.ID)+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Cancelling through the ops API must not strand the player in a
	// busy status.
	got, err := stores.Players.GetBySubject(ctx, "telegram:1")
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if got.Status != types.StatusIdle || got.DestinationAreaID != 0 {
		t.Errorf("expected idle player after ops cancel, got status=%s dest=%d", got.Status, got.DestinationAreaID)
	}
}

func TestPlayerJournal(t *testing.T) {
	srv, stores, _ := newTestServer(t)
	ctx := context.Background()

	entry := &types.JournalEntry{
		ID:        types.NewJournalEntryID(),
		SubjectID: "telegram:1",
		Type:      "travel_started",
		At:        time.Now(),
	}
	if err := stores.Journal.Append(ctx, entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/players/telegram:1/journal", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var entries []*types.JournalEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != "travel_started" {
		t.Errorf("unexpected journal payload: %+v", entries)
	}
}
