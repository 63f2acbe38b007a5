// internal/state/journal.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/telerpg/internal/types"
)

// JournalStore is a JSONL-backed append-only activity log. Entries are
// stored per-subject in journal/<subject>.jsonl.
type JournalStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.SubjectID]*sync.Mutex
}

// NewJournalStore creates a file-backed JournalStore rooted at the
// given directory.
func NewJournalStore(root string) *JournalStore {
	return &JournalStore{
		root:  root,
		locks: make(map[types.SubjectID]*sync.Mutex),
	}
}

// getLock returns the per-subject mutex, creating one if it doesn't exist.
func (j *JournalStore) getLock(subject types.SubjectID) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lock, ok := j.locks[subject]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.locks[subject] = lock
	return lock
}

func (j *JournalStore) journalPath(subject types.SubjectID) string {
	// Subject IDs contain a transport prefix with a colon; escape so
	// the ID maps to a single safe path element.
	return filepath.Join(j.root, "journal", url.PathEscape(string(subject))+".jsonl")
}

// count reads the journal file and counts lines. Caller must hold the
// subject lock.
func (j *JournalStore) count(subject types.SubjectID) (int64, error) {
	f, err := os.Open(j.journalPath(subject))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan journal file: %w", err)
	}
	return count, nil
}

// Append adds an entry to the subject's journal with an
// auto-incremented sequence number.
func (j *JournalStore) Append(_ context.Context, entry *types.JournalEntry) error {
	lock := j.getLock(entry.SubjectID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(j.journalPath(entry.SubjectID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	existing, err := j.count(entry.SubjectID)
	if err != nil {
		return err
	}
	entry.Seq = existing + 1

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	f, err := os.OpenFile(j.journalPath(entry.SubjectID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}

	return nil
}

// Tail returns the last N entries for the given subject.
func (j *JournalStore) Tail(_ context.Context, subject types.SubjectID, limit int) ([]*types.JournalEntry, error) {
	lock := j.getLock(subject)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(j.journalPath(subject))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()

	var entries []*types.JournalEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry types.JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal journal entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal file: %w", err)
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	return entries, nil
}

// Count returns the number of entries for the given subject.
func (j *JournalStore) Count(_ context.Context, subject types.SubjectID) (int64, error) {
	lock := j.getLock(subject)
	lock.Lock()
	defer lock.Unlock()

	return j.count(subject)
}
