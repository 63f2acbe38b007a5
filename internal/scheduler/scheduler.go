// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/telerpg/internal/types"
)

// Handler is the callback invoked when a scheduled action becomes
// ready. It applies the action's effect; the scheduler marks the
// action completed only after the handler returns nil.
type Handler func(ctx context.Context, action *types.ScheduledAction) error

// AlertFunc is called when an action's delivery exhausts its retries.
// The action stays pending, so the periodic sweep will try it again.
type AlertFunc func(subject types.SubjectID, message string)

// Scheduler fires deferred actions at their ReadyAt time. Every action
// lives in the store first; in-memory timers are only an optimization
// over the cron sweep, so a crash between Insert and timer arming
// loses nothing.
type Scheduler struct {
	actions types.ActionStore
	handler Handler
	policy  *RetryPolicy
	alert   AlertFunc
	sweep   string
	cron    *cron.Cron

	mu     sync.Mutex
	timers map[types.ActionID]*time.Timer
	firing map[types.ActionID]bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRetryPolicy overrides the default delivery retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithAlertFunc sets the callback for exhausted delivery retries.
func WithAlertFunc(fn AlertFunc) Option {
	return func(s *Scheduler) { s.alert = fn }
}

// WithSweepSchedule overrides the cron spec for the safety-net sweep.
func WithSweepSchedule(spec string) Option {
	return func(s *Scheduler) { s.sweep = spec }
}

// New creates a Scheduler backed by the given action store. The
// handler is called each time an action becomes ready.
func New(actions types.ActionStore, handler Handler, opts ...Option) *Scheduler {
	s := &Scheduler{
		actions: actions,
		handler: handler,
		policy:  DefaultRetryPolicy(),
		sweep:   "@every 1m",
		cron:    cron.New(),
		timers:  make(map[types.ActionID]*time.Timer),
		firing:  make(map[types.ActionID]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start recovers persisted pending actions and starts the sweep
// ticker. Overdue actions fire inline, ordered by ReadyAt, before
// Start returns; future actions get a timer.
func (s *Scheduler) Start(ctx context.Context) error {
	pending, err := s.actions.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("recover pending actions: %w", err)
	}

	now := time.Now()
	for _, a := range pending {
		if !a.ReadyAt.After(now) {
			slog.Info("firing overdue action on recovery", "action_id", a.ID, "kind", a.Kind, "ready_at", a.ReadyAt)
			s.fire(ctx, a.ID)
			continue
		}
		s.arm(ctx, a.ID, a.ReadyAt)
	}

	if _, err := s.cron.AddFunc(s.sweep, func() { s.sweepPending(ctx) }); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	s.cron.Start()
	slog.Info("scheduler started", "recovered", len(pending), "sweep", s.sweep)
	return nil
}

// Stop stops the sweep ticker and disarms all timers. Pending actions
// stay in the store for the next Start.
func (s *Scheduler) Stop() {
	s.cron.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Schedule inserts a new pending action and arms its timer. Returns
// ErrConflict if the subject already has a pending action of the same
// class.
func (s *Scheduler) Schedule(ctx context.Context, subject types.SubjectID, kind types.ActionKind, class types.ActionClass, payload any, readyAt time.Time) (*types.ScheduledAction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal action payload: %w", err)
	}

	now := time.Now()
	action := &types.ScheduledAction{
		ID:        types.NewActionID(),
		SubjectID: subject,
		Kind:      kind,
		Class:     class,
		Payload:   raw,
		ReadyAt:   readyAt,
		State:     types.ActionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.actions.Insert(ctx, action); err != nil {
		return nil, err
	}

	s.arm(ctx, action.ID, readyAt)
	slog.Info("scheduled action", "action_id", action.ID, "subject", subject, "kind", kind, "ready_at", readyAt)
	return action, nil
}

// Cancel transitions a pending action to cancelled and disarms its
// timer. Returns ErrNotFound if the action is missing or already
// terminal.
func (s *Scheduler) Cancel(ctx context.Context, id types.ActionID) error {
	if err := s.actions.MarkCancelled(ctx, id); err != nil {
		return err
	}
	s.disarm(id)
	slog.Info("cancelled action", "action_id", id)
	return nil
}

// arm registers a timer that fires the action at readyAt. An already
// armed action keeps its existing timer.
func (s *Scheduler) arm(ctx context.Context, id types.ActionID, readyAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[id]; ok {
		return
	}
	delay := time.Until(readyAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.disarm(id)
		s.fire(ctx, id)
	})
}

func (s *Scheduler) disarm(id types.ActionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// beginFiring claims the action for delivery. Returns false if another
// goroutine (timer vs sweep) is already delivering it.
func (s *Scheduler) beginFiring(id types.ActionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.firing[id] {
		return false
	}
	s.firing[id] = true
	return true
}

func (s *Scheduler) endFiring(id types.ActionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.firing, id)
}

// fire delivers one action: run the handler, then mark the action
// completed. Both run under the retry policy so a transient store or
// transport failure does not lose the completion; the handler's
// effect application is idempotent, so re-running it is safe.
func (s *Scheduler) fire(ctx context.Context, id types.ActionID) {
	if !s.beginFiring(id) {
		return
	}
	defer s.endFiring(id)

	action, err := s.actions.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			slog.Error("load action for delivery", "action_id", id, "error", err)
		}
		return
	}
	if action.State != types.ActionPending {
		return
	}

	if err := s.actions.RecordAttempt(ctx, id); err != nil {
		slog.Warn("record delivery attempt", "action_id", id, "error", err)
	}

	err = s.policy.Execute(func() error {
		if err := s.handler(ctx, action); err != nil {
			return err
		}
		return s.actions.MarkCompleted(ctx, id)
	})
	if err == nil {
		slog.Info("action completed", "action_id", id, "subject", action.SubjectID, "kind", action.Kind)
		return
	}
	if errors.Is(err, types.ErrNotFound) {
		// Lost the race with a cancel; the effect was never applied or
		// the completion already landed. Either way there is nothing
		// left to deliver.
		return
	}

	slog.Error("action delivery failed, leaving pending for sweep", "action_id", id, "subject", action.SubjectID, "error", err)
	if s.alert != nil {
		s.alert(action.SubjectID, fmt.Sprintf("action %s delivery failed: %v", action.Kind, err))
	}
}

// sweepPending fires every due action that has no armed timer. This is
// the safety net behind in-memory timers: missed timers, failed
// deliveries, and actions scheduled by a previous process all land
// here.
func (s *Scheduler) sweepPending(ctx context.Context) {
	pending, err := s.actions.ListPending(ctx)
	if err != nil {
		slog.Error("sweep pending actions", "error", err)
		return
	}

	now := time.Now()
	for _, a := range pending {
		if a.ReadyAt.After(now) {
			s.arm(ctx, a.ID, a.ReadyAt)
			continue
		}
		s.mu.Lock()
		_, armed := s.timers[a.ID]
		s.mu.Unlock()
		if armed {
			continue
		}
		go s.fire(ctx, a.ID)
	}
}
