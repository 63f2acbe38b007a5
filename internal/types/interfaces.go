// internal/types/interfaces.go
package types

import "context"

// DialogueStore persists guided dialogue sessions. At most one active
// session may exist per subject; the store enforces this on Create.
type DialogueStore interface {
	// Create stores a new active session. Returns ErrConflict if the
	// subject already has an active session.
	Create(ctx context.Context, s *DialogueSession) error
	// GetActive returns the subject's active session or ErrNotFound.
	GetActive(ctx context.Context, subject SubjectID) (*DialogueSession, error)
	// Update persists cursor/field changes to the active session.
	Update(ctx context.Context, s *DialogueSession) error
	// Finalize archives the active session with a terminal status.
	// Returns ErrNotFound if no active session exists.
	Finalize(ctx context.Context, subject SubjectID, status SessionStatus) error
}

// ActionStore persists scheduled actions. Pending rows are unique per
// (subject, class); the store enforces this on Insert.
type ActionStore interface {
	// Insert stores a new pending action. Returns ErrConflict if a
	// pending action of the same class exists for the subject.
	Insert(ctx context.Context, a *ScheduledAction) error
	Get(ctx context.Context, id ActionID) (*ScheduledAction, error)
	// ListPending returns all pending actions ordered by ReadyAt
	// ascending. This is the scheduler's recovery scan.
	ListPending(ctx context.Context) ([]*ScheduledAction, error)
	// PendingForSubject returns the subject's pending actions ordered
	// by ReadyAt ascending.
	PendingForSubject(ctx context.Context, subject SubjectID) ([]*ScheduledAction, error)
	// MarkCompleted transitions a pending action to completed.
	// Returns ErrNotFound if the action is missing or not pending.
	MarkCompleted(ctx context.Context, id ActionID) error
	// MarkCancelled transitions a pending action to cancelled.
	// Returns ErrNotFound if the action is missing or not pending.
	MarkCancelled(ctx context.Context, id ActionID) error
	// RecordAttempt increments the action's delivery attempt counter.
	RecordAttempt(ctx context.Context, id ActionID) error
}

// PlayerStore persists player records.
type PlayerStore interface {
	// Create stores a new player. Returns ErrConflict if the subject
	// already has one.
	Create(ctx context.Context, p *Player) error
	// GetBySubject returns the subject's player or ErrNotFound.
	GetBySubject(ctx context.Context, subject SubjectID) (*Player, error)
	List(ctx context.Context) ([]*Player, error)
	Update(ctx context.Context, p *Player) error
	// ApplyCompletion applies a completed action's effect exactly once.
	// If actionID is already recorded on the player the mutation is
	// skipped and applied is false. Otherwise mutate runs and the
	// marker is recorded in the same durable write.
	ApplyCompletion(ctx context.Context, subject SubjectID, actionID ActionID, mutate func(*Player)) (applied bool, err error)
}

// JournalStore is an append-only per-subject activity log.
type JournalStore interface {
	Append(ctx context.Context, e *JournalEntry) error
	Tail(ctx context.Context, subject SubjectID, limit int) ([]*JournalEntry, error)
	Count(ctx context.Context, subject SubjectID) (int64, error)
}
