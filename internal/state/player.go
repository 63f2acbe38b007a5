// internal/state/player.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/telerpg/internal/types"
)

// PlayerStore is a JSON-file-backed store for player records. Each
// mutation rewrites players.json atomically under the store lock, so a
// read-modify-write performed inside ApplyCompletion is a single
// durable transaction boundary.
type PlayerStore struct {
	root string
	mu   sync.RWMutex
}

// NewPlayerStore creates a file-backed PlayerStore rooted at the given
// directory.
func NewPlayerStore(root string) *PlayerStore {
	return &PlayerStore{root: root}
}

func (s *PlayerStore) path() string {
	return filepath.Join(s.root, "players.json")
}

func (s *PlayerStore) load() ([]*types.Player, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read players file: %w", err)
	}

	var players []*types.Player
	if err := json.Unmarshal(data, &players); err != nil {
		return nil, fmt.Errorf("unmarshal players: %w", err)
	}
	return players, nil
}

func (s *PlayerStore) save(players []*types.Player) error {
	data, err := json.MarshalIndent(players, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp players file: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp players file: %w", err)
	}
	return nil
}

// Create stores a new player. Returns ErrConflict if the subject
// already has one.
func (s *PlayerStore) Create(_ context.Context, p *types.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	players, err := s.load()
	if err != nil {
		return err
	}

	for _, existing := range players {
		if existing.SubjectID == p.SubjectID {
			return fmt.Errorf("player for %s: %w", p.SubjectID, types.ErrConflict)
		}
	}

	players = append(players, p)
	return s.save(players)
}

// GetBySubject returns the subject's player or ErrNotFound.
func (s *PlayerStore) GetBySubject(_ context.Context, subject types.SubjectID) (*types.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, p := range players {
		if p.SubjectID == subject {
			return p, nil
		}
	}
	return nil, fmt.Errorf("player for %s: %w", subject, types.ErrNotFound)
}

// List returns all players.
func (s *PlayerStore) List(_ context.Context) ([]*types.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players, err := s.load()
	if err != nil {
		return nil, err
	}
	if players == nil {
		players = []*types.Player{}
	}
	return players, nil
}

// Update persists changes to an existing player, matched by ID.
func (s *PlayerStore) Update(_ context.Context, p *types.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	players, err := s.load()
	if err != nil {
		return err
	}

	for i, existing := range players {
		if existing.ID == p.ID {
			p.UpdatedAt = time.Now()
			players[i] = p
			return s.save(players)
		}
	}
	return fmt.Errorf("player %s: %w", p.ID, types.ErrNotFound)
}

// ApplyCompletion applies a completed action's effect exactly once.
// The idempotency check, the mutation, and the marker write all happen
// under the store lock and land in one atomic file write, so the
// effect can never be half-applied or applied twice.
func (s *PlayerStore) ApplyCompletion(_ context.Context, subject types.SubjectID, actionID types.ActionID, mutate func(*types.Player)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	players, err := s.load()
	if err != nil {
		return false, err
	}

	for _, p := range players {
		if p.SubjectID != subject {
			continue
		}
		if p.ActionApplied(actionID) {
			return false, nil
		}
		mutate(p)
		p.AppliedActions = append(p.AppliedActions, actionID)
		p.UpdatedAt = time.Now()
		if err := s.save(players); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("player for %s: %w", subject, types.ErrNotFound)
}
