// internal/dialogue/engine.go
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/telerpg/internal/types"
)

// Outcome classifies the result of submitting input to a session.
type Outcome int

const (
	// OutcomeIgnored means the input was not of the current step's
	// kind (or not one of its choice tokens) and was not consumed.
	OutcomeIgnored Outcome = iota
	// OutcomeRejected means the input was the right kind but invalid;
	// the cursor did not move and the subject may retry indefinitely.
	OutcomeRejected
	OutcomeAdvanced
	OutcomeFinished
)

// Input is one raw user input routed into a session.
type Input struct {
	Kind  InputKind
	Value string
}

// Result describes what a Submit did.
type Result struct {
	Outcome Outcome
	// Reason is the corrective message for OutcomeRejected.
	Reason string
	// Prompt and Choices describe the next step for OutcomeAdvanced.
	Prompt  string
	Choices []types.Choice
	// Record holds all collected fields for OutcomeFinished.
	Record types.FieldValues
	// Warning is a non-fatal message when the completion consumer
	// failed; the dialogue still finished.
	Warning string
}

// FinishFunc consumes a completed dialogue's fields. It runs exactly
// once per completed session; failure is surfaced as a warning, not a
// dialogue error.
type FinishFunc func(ctx context.Context, subject types.SubjectID, fields types.FieldValues) error

// FinishWarning is the user-facing text shown when the completion
// consumer fails after the dialogue completed.
const FinishWarning = "⚠️ Warning: There was an issue saving your character, but you can still play. Please contact an administrator if this persists."

// Engine drives guided dialogues: a persisted step cursor plus
// collected fields, so dialogue position survives restarts. Callers
// must serialize Submit per subject (the gateway's subject lanes do
// this); the engine itself holds no in-memory session state.
type Engine struct {
	store  types.DialogueStore
	steps  []Step
	finish FinishFunc
}

// NewEngine creates an Engine over the given store and step sequence.
// finish may be nil.
func NewEngine(store types.DialogueStore, steps []Step, finish FinishFunc) *Engine {
	return &Engine{store: store, steps: steps, finish: finish}
}

// Start opens a new session for the subject and returns the first
// step. Returns ErrConflict (wrapped) if the subject already has an
// active session.
func (e *Engine) Start(ctx context.Context, subject types.SubjectID) (*Step, error) {
	now := time.Now()
	sess := &types.DialogueSession{
		SubjectID: subject,
		StepIndex: 0,
		Fields:    types.FieldValues{},
		Status:    types.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("start dialogue: %w", err)
	}
	return &e.steps[0], nil
}

// Submit routes raw input into the subject's active session. Returns
// ErrNotFound (wrapped) if the subject has no active session. Input of
// the wrong kind for the current step yields OutcomeIgnored and is not
// consumed. Rejected input leaves the cursor unchanged.
func (e *Engine) Submit(ctx context.Context, subject types.SubjectID, input Input) (*Result, error) {
	sess, err := e.store.GetActive(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if sess.StepIndex < 0 || sess.StepIndex >= len(e.steps) {
		return nil, fmt.Errorf("submit: step cursor %d out of range", sess.StepIndex)
	}
	step := e.steps[sess.StepIndex]

	var collected types.FieldValues
	switch step.Kind {
	case InputText:
		if input.Kind != InputText {
			return &Result{Outcome: OutcomeIgnored}, nil
		}
		raw := strings.TrimSpace(input.Value)
		if step.Validate != nil {
			if ok, reason := step.Validate(raw); !ok {
				return &Result{Outcome: OutcomeRejected, Reason: reason}, nil
			}
		}
		collected = step.Collect(raw)
	case InputChoice:
		if input.Kind != InputChoice {
			return &Result{Outcome: OutcomeIgnored}, nil
		}
		choice, ok := matchChoice(step.Choices, input.Value)
		if !ok {
			// Unknown token: not for this step, leave it unconsumed.
			return &Result{Outcome: OutcomeIgnored}, nil
		}
		collected = types.FieldValues{step.Name: choice.Value}
	}

	for k, v := range collected {
		if _, exists := sess.Fields[k]; exists {
			return nil, fmt.Errorf("submit: field %q already collected", k)
		}
		sess.Fields[k] = v
	}
	sess.StepIndex++

	if sess.StepIndex < len(e.steps) {
		if err := e.store.Update(ctx, sess); err != nil {
			return nil, fmt.Errorf("advance dialogue: %w", err)
		}
		next := e.steps[sess.StepIndex]
		return &Result{Outcome: OutcomeAdvanced, Prompt: next.Prompt, Choices: next.ReplyChoices()}, nil
	}

	// Final step accepted: persist the full record, archive the
	// session, then hand the record to the consumer. Consumer failure
	// does not reopen the session; the dialogue is done either way.
	if err := e.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("complete dialogue: %w", err)
	}
	if err := e.store.Finalize(ctx, subject, types.SessionCompleted); err != nil {
		return nil, fmt.Errorf("finalize dialogue: %w", err)
	}

	record := sess.Fields.Clone()
	result := &Result{Outcome: OutcomeFinished, Record: record}
	if e.finish != nil {
		if err := e.finish(ctx, subject, record); err != nil {
			slog.Warn("dialogue completion consumer failed", "subject", subject, "error", err)
			result.Warning = FinishWarning
		}
	}
	return result, nil
}

// Abandon terminates the subject's active session, if any. It is
// idempotent: abandoning with no active session is a no-op.
func (e *Engine) Abandon(ctx context.Context, subject types.SubjectID) error {
	err := e.store.Finalize(ctx, subject, types.SessionAbandoned)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("abandon dialogue: %w", err)
	}
	return nil
}

func matchChoice(choices []Choice, token string) (Choice, bool) {
	for _, c := range choices {
		if c.Token == token {
			return c, true
		}
	}
	return Choice{}, false
}
