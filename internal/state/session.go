// internal/state/session.go
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

// DialogueStore is a JSON-file-backed store for guided dialogue
// sessions. It keeps one row per subject in dialogues.json: the active
// session if one exists, otherwise the most recently finished one.
type DialogueStore struct {
	root string
	mu   sync.RWMutex
}

// NewDialogueStore creates a file-backed DialogueStore rooted at the
// given directory.
func NewDialogueStore(root string) *DialogueStore {
	return &DialogueStore{root: root}
}

func (s *DialogueStore) path() string {
	return filepath.Join(s.root, "dialogues.json")
}

func (s *DialogueStore) load() (map[types.SubjectID]*types.DialogueSession, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.SubjectID]*types.DialogueSession), nil
		}
		return nil, fmt.Errorf("read dialogue index: %w", err)
	}

	var sessions []*types.DialogueSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshal dialogue index: %w", err)
	}

	index := make(map[types.SubjectID]*types.DialogueSession, len(sessions))
	for _, sess := range sessions {
		index[sess.SubjectID] = sess
	}
	return index, nil
}

func (s *DialogueStore) save(index map[types.SubjectID]*types.DialogueSession) error {
	sessions := make([]*types.DialogueSession, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dialogue index: %w", err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp dialogue index: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp dialogue index: %w", err)
	}
	return nil
}

// Create stores a new active session, replacing any finished session
// kept for the subject. Returns ErrConflict if an active one exists.
func (s *DialogueStore) Create(_ context.Context, sess *types.DialogueSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.load()
	if err != nil {
		return err
	}

	if existing, ok := index[sess.SubjectID]; ok && existing.Status == types.SessionActive {
		return fmt.Errorf("dialogue for %s: %w", sess.SubjectID, types.ErrConflict)
	}

	index[sess.SubjectID] = sess
	return s.save(index)
}

// GetActive returns the subject's active session or ErrNotFound.
func (s *DialogueStore) GetActive(_ context.Context, subject types.SubjectID) (*types.DialogueSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.load()
	if err != nil {
		return nil, err
	}

	sess, ok := index[subject]
	if !ok || sess.Status != types.SessionActive {
		return nil, fmt.Errorf("active dialogue for %s: %w", subject, types.ErrNotFound)
	}
	return sess, nil
}

// Update persists cursor and field changes to the active session.
func (s *DialogueStore) Update(_ context.Context, sess *types.DialogueSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.load()
	if err != nil {
		return err
	}

	existing, ok := index[sess.SubjectID]
	if !ok || existing.Status != types.SessionActive {
		return fmt.Errorf("active dialogue for %s: %w", sess.SubjectID, types.ErrNotFound)
	}

	sess.UpdatedAt = time.Now()
	index[sess.SubjectID] = sess
	return s.save(index)
}

// Finalize archives the active session with a terminal status so a
// later Create for the same subject succeeds.
func (s *DialogueStore) Finalize(_ context.Context, subject types.SubjectID, status types.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.load()
	if err != nil {
		return err
	}

	sess, ok := index[subject]
	if !ok || sess.Status != types.SessionActive {
		return fmt.Errorf("active dialogue for %s: %w", subject, types.ErrNotFound)
	}

	sess.Status = status
	sess.UpdatedAt = time.Now()
	return s.save(index)
}
