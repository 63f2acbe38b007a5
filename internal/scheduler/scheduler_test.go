package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/user/telerpg/internal/state"
	"github.com/user/telerpg/internal/types"
)

type capture struct {
	mu    sync.Mutex
	fired []types.ActionID
	ch    chan types.ActionID
	fail  map[types.ActionID]int
}

func newCapture() *capture {
	return &capture{
		ch:   make(chan types.ActionID, 16),
		fail: make(map[types.ActionID]int),
	}
}

func (c *capture) handler(_ context.Context, a *types.ScheduledAction) error {
	c.mu.Lock()
	remaining := c.fail[a.ID]
	if remaining > 0 {
		c.fail[a.ID] = remaining - 1
		c.mu.Unlock()
		return errors.New("temporary failure")
	}
	c.fired = append(c.fired, a.ID)
	c.mu.Unlock()
	c.ch <- a.ID
	return nil
}

func (c *capture) waitFor(t *testing.T, id types.ActionID) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-c.ch:
			if got == id {
				return
			}
		case <-deadline:
			t.Fatalf("action %s never fired", id)
		}
	}
}

// waitState polls until the action reaches the wanted state. The
// handler signals before the scheduler marks completion, so tests must
// not read the store directly right after waitFor.
func waitState(t *testing.T, store *state.ActionStore, id types.ActionID, want types.ActionState) *types.ScheduledAction {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.State == want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("action %s stuck in %s, want %s", id, got.State, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   1.0,
		MaxDelay:     time.Millisecond,
	}
}

func TestScheduleFiresAtReadyAt(t *testing.T) {
	store := state.NewActionStore(t.TempDir())
	cap := newCapture()
	s := New(store, cap.handler, WithRetryPolicy(fastPolicy()))
	defer s.Stop()

	ctx := context.Background()
	action, err := s.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement,
		map[string]int{"destination_area_id": 2}, time.Now().Add(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	cap.waitFor(t, action.ID)
	waitState(t, store, action.ID, types.ActionCompleted)
}

func TestScheduleConflictSameClass(t *testing.T) {
	store := state.NewActionStore(t.TempDir())
	cap := newCapture()
	s := New(store, cap.handler, WithRetryPolicy(fastPolicy()))
	defer s.Stop()

	ctx := context.Background()
	ready := time.Now().Add(time.Hour)
	if _, err := s.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement, nil, ready); err != nil {
		t.Fatalf("first Schedule failed: %v", err)
	}

	_, err := s.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement, nil, ready)
	if !errors.Is(err, types.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// Another class for the same subject schedules fine.
	if _, err := s.Schedule(ctx, "telegram:1", types.ActionCraft, types.ClassWork, nil, ready); err != nil {
		t.Errorf("Schedule of other class failed: %v", err)
	}
}

func TestCancelPreventsFire(t *testing.T) {
	store := state.NewActionStore(t.TempDir())
	cap := newCapture()
	s := New(store, cap.handler, WithRetryPolicy(fastPolicy()))
	defer s.Stop()

	ctx := context.Background()
	action, err := s.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement, nil, time.Now().Add(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if err := s.Cancel(ctx, action.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	cap.mu.Lock()
	fired := len(cap.fired)
	cap.mu.Unlock()
	if fired != 0 {
		t.Errorf("cancelled action fired %d times", fired)
	}

	got, err := store.Get(ctx, action.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != types.ActionCancelled {
		t.Errorf("expected cancelled, got %s", got.State)
	}

	// The movement slot is free again.
	if _, err := s.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement, nil, time.Now().Add(time.Hour)); err != nil {
		t.Errorf("Schedule after cancel failed: %v", err)
	}
}

func TestCancelMissingOrTerminal(t *testing.T) {
	store := state.NewActionStore(t.TempDir())
	cap := newCapture()
	s := New(store, cap.handler, WithRetryPolicy(fastPolicy()))
	defer s.Stop()

	ctx := context.Background()
	if err := s.Cancel(ctx, types.NewActionID()); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}

	action, err := s.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement, nil, time.Now())
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	cap.waitFor(t, action.ID)
	waitState(t, store, action.ID, types.ActionCompleted)

	if err := s.Cancel(ctx, action.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound cancelling completed action, got %v", err)
	}
}

func TestStartRecoversOverdueInOrder(t *testing.T) {
	dir := t.TempDir()
	store := state.NewActionStore(dir)
	ctx := context.Background()

	// Persist pending rows as if a previous process scheduled them and
	// died before they fired.
	base := time.Now()
	mk := func(subject types.SubjectID, readyAt time.Time) *types.ScheduledAction {
		a := &types.ScheduledAction{
			ID:        types.NewActionID(),
			SubjectID: subject,
			Kind:      types.ActionTravel,
			Class:     types.ClassMovement,
			Payload:   json.RawMessage(`{}`),
			ReadyAt:   readyAt,
			State:     types.ActionPending,
			CreatedAt: readyAt,
			UpdatedAt: readyAt,
		}
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		return a
	}
	second := mk("telegram:1", base.Add(-time.Minute))
	first := mk("telegram:2", base.Add(-time.Hour))
	future := mk("telegram:3", base.Add(time.Hour))

	cap := newCapture()
	s := New(store, cap.handler, WithRetryPolicy(fastPolicy()))
	defer s.Stop()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Overdue actions fire inline during Start, oldest ReadyAt first.
	cap.mu.Lock()
	fired := append([]types.ActionID(nil), cap.fired...)
	cap.mu.Unlock()
	if len(fired) != 2 {
		t.Fatalf("expected 2 recovered fires, got %d", len(fired))
	}
	if fired[0] != first.ID || fired[1] != second.ID {
		t.Errorf("expected recovery order %s,%s, got %s,%s", first.ID, second.ID, fired[0], fired[1])
	}

	got, err := store.Get(ctx, future.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != types.ActionPending {
		t.Errorf("future action should stay pending, got %s", got.State)
	}
}

func TestFireRetriesTransientFailure(t *testing.T) {
	store := state.NewActionStore(t.TempDir())
	cap := newCapture()
	s := New(store, cap.handler, WithRetryPolicy(fastPolicy()))
	defer s.Stop()

	ctx := context.Background()
	ready := time.Now().Add(10 * time.Millisecond)
	action, err := s.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement, nil, ready)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	cap.mu.Lock()
	cap.fail[action.ID] = 2
	cap.mu.Unlock()

	cap.waitFor(t, action.ID)
	waitState(t, store, action.ID, types.ActionCompleted)
}

func TestExhaustedRetriesLeavePendingAndAlert(t *testing.T) {
	store := state.NewActionStore(t.TempDir())
	cap := newCapture()

	alerts := make(chan string, 1)
	s := New(store, cap.handler,
		WithRetryPolicy(fastPolicy()),
		WithAlertFunc(func(subject types.SubjectID, msg string) {
			alerts <- fmt.Sprintf("%s: %s", subject, msg)
		}))
	defer s.Stop()

	ctx := context.Background()
	action, err := s.Schedule(ctx, "telegram:1", types.ActionTravel, types.ClassMovement, nil, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	s.disarm(action.ID)
	cap.mu.Lock()
	cap.fail[action.ID] = 99
	cap.mu.Unlock()

	s.fire(ctx, action.ID)

	select {
	case <-alerts:
	default:
		t.Error("expected an alert after exhausted retries")
	}

	got, err := store.Get(ctx, action.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != types.ActionPending {
		t.Errorf("failed action must stay pending for the sweep, got %s", got.State)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 recorded delivery attempt, got %d", got.Attempts)
	}
}
