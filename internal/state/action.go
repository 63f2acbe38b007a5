// internal/state/action.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/telerpg/internal/types"
)

// ActionStore is a JSON-file-backed store for scheduled actions. All
// rows live in actions.json; the file is rewritten atomically on every
// mutation, so a mutation either lands completely or not at all.
type ActionStore struct {
	root string
	mu   sync.RWMutex
}

// NewActionStore creates a file-backed ActionStore rooted at the given
// directory.
func NewActionStore(root string) *ActionStore {
	return &ActionStore{root: root}
}

func (s *ActionStore) path() string {
	return filepath.Join(s.root, "actions.json")
}

func (s *ActionStore) load() ([]*types.ScheduledAction, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read actions file: %w", err)
	}

	var actions []*types.ScheduledAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	return actions, nil
}

func (s *ActionStore) save(actions []*types.ScheduledAction) error {
	data, err := json.MarshalIndent(actions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp actions file: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp actions file: %w", err)
	}
	return nil
}

// Insert stores a new pending action. The pending-uniqueness check and
// the append happen under one lock, so two racing schedules for the
// same (subject, class) cannot both land.
func (s *ActionStore) Insert(_ context.Context, a *types.ScheduledAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, err := s.load()
	if err != nil {
		return err
	}

	for _, existing := range actions {
		if existing.SubjectID == a.SubjectID &&
			existing.Class == a.Class &&
			existing.State == types.ActionPending {
			return fmt.Errorf("pending %s action for %s: %w", a.Class, a.SubjectID, types.ErrConflict)
		}
	}

	actions = append(actions, a)
	return s.save(actions)
}

// Get returns the action with the given ID or ErrNotFound.
func (s *ActionStore) Get(_ context.Context, id types.ActionID) (*types.ScheduledAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, a := range actions {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("action %s: %w", id, types.ErrNotFound)
}

// ListPending returns all pending actions ordered by ReadyAt ascending.
func (s *ActionStore) ListPending(_ context.Context) ([]*types.ScheduledAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions, err := s.load()
	if err != nil {
		return nil, err
	}
	return filterPending(actions, ""), nil
}

// PendingForSubject returns the subject's pending actions ordered by
// ReadyAt ascending.
func (s *ActionStore) PendingForSubject(_ context.Context, subject types.SubjectID) ([]*types.ScheduledAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions, err := s.load()
	if err != nil {
		return nil, err
	}
	return filterPending(actions, subject), nil
}

func filterPending(actions []*types.ScheduledAction, subject types.SubjectID) []*types.ScheduledAction {
	pending := make([]*types.ScheduledAction, 0, len(actions))
	for _, a := range actions {
		if a.State != types.ActionPending {
			continue
		}
		if subject != "" && a.SubjectID != subject {
			continue
		}
		pending = append(pending, a)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ReadyAt.Before(pending[j].ReadyAt)
	})
	return pending
}

// MarkCompleted transitions a pending action to completed.
func (s *ActionStore) MarkCompleted(ctx context.Context, id types.ActionID) error {
	return s.transition(id, types.ActionCompleted)
}

// MarkCancelled transitions a pending action to cancelled.
func (s *ActionStore) MarkCancelled(ctx context.Context, id types.ActionID) error {
	return s.transition(id, types.ActionCancelled)
}

// transition moves a pending action to a terminal state. Only pending
// actions transition; anything else is ErrNotFound, which makes the
// completed/cancelled race resolve to a single winner.
func (s *ActionStore) transition(id types.ActionID, to types.ActionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, err := s.load()
	if err != nil {
		return err
	}

	for _, a := range actions {
		if a.ID != id {
			continue
		}
		if a.State != types.ActionPending {
			return fmt.Errorf("pending action %s: %w", id, types.ErrNotFound)
		}
		a.State = to
		a.UpdatedAt = time.Now()
		return s.save(actions)
	}
	return fmt.Errorf("action %s: %w", id, types.ErrNotFound)
}

// RecordAttempt increments the delivery attempt counter for an action.
func (s *ActionStore) RecordAttempt(_ context.Context, id types.ActionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, err := s.load()
	if err != nil {
		return err
	}

	for _, a := range actions {
		if a.ID == id {
			a.Attempts++
			a.UpdatedAt = time.Now()
			return s.save(actions)
		}
	}
	return fmt.Errorf("action %s: %w", id, types.ErrNotFound)
}
