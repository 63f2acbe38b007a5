// internal/gateway/gateway.go
package gateway

import (
	"context"

	"github.com/user/telerpg/internal/dialogue"
	"github.com/user/telerpg/internal/observability"
	"github.com/user/telerpg/internal/scheduler"
	"github.com/user/telerpg/internal/types"
)

// SendFunc delivers an unsolicited reply to a subject, outside the
// request/response cycle of an inbound event.
type SendFunc func(subject types.SubjectID, reply *types.Reply) error

// Deps are the collaborators the gateway drives. Metrics may be nil.
type Deps struct {
	Engine    *dialogue.Engine
	Scheduler *scheduler.Scheduler
	Players   types.PlayerStore
	Actions   types.ActionStore
	Journal   types.JournalStore
	Metrics   *observability.Metrics
}

// Gateway turns inbound events into per-subject serialized work. All
// command handling, dialogue submits, and scheduling for one subject
// run on that subject's lane, so conflict checks never race.
type Gateway struct {
	deps  Deps
	send  SendFunc
	Queue *Queue
}

// New creates a Gateway with the given concurrency limit for
// simultaneous turn processing.
func New(deps Deps, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	g := &Gateway{
		deps:  deps,
		Queue: NewQueue(concurrency),
	}
	g.Queue.SetProcessor(g.runTurn)
	return g
}

// SetSender wires the outbound delivery function used for
// notifications. Must be set before Notify is used.
func (g *Gateway) SetSender(send SendFunc) {
	g.send = send
}

// AttachScheduler wires the scheduler after construction. The action
// completion handler needs the gateway's Notify before the scheduler
// can be built, so this runs second.
func (g *Gateway) AttachScheduler(s *scheduler.Scheduler) {
	g.deps.Scheduler = s
}

// Start starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop stops the queue and waits for in-flight turns.
func (g *Gateway) Stop() {
	g.Queue.Stop()
}

// TurnOption configures optional behavior on a Turn.
type TurnOption func(*Turn)

// WithOnReply sets the callback that delivers the turn's reply.
func WithOnReply(fn func(*types.Reply)) TurnOption {
	return func(t *Turn) { t.OnReply = fn }
}

// HandleInbound wraps an inbound event in a Turn on the subject's lane.
func (g *Gateway) HandleInbound(_ context.Context, event *types.InboundEvent, opts ...TurnOption) error {
	turn := NewTurn(event.SubjectID, func(ctx context.Context) (*types.Reply, error) {
		return g.process(ctx, event)
	})
	for _, opt := range opts {
		opt(turn)
	}
	return g.Queue.Enqueue(turn)
}

// Notify enqueues an unsolicited message on the subject's lane, so it
// cannot interleave with a turn already processing for that subject.
func (g *Gateway) Notify(subject types.SubjectID, text string) {
	turn := NewTurn(subject, func(context.Context) (*types.Reply, error) {
		return &types.Reply{Text: text}, nil
	})
	_ = g.Queue.Enqueue(turn)
}

// runTurn executes one dequeued turn and delivers its reply, through
// the turn's own OnReply when present, otherwise through the outbound
// sender.
func (g *Gateway) runTurn(turn *Turn) error {
	reply, err := turn.Do(turn.Ctx)
	if err != nil {
		g.deps.Metrics.TurnError()
		return err
	}
	g.deps.Metrics.TurnProcessed()
	if reply == nil {
		return nil
	}
	if turn.OnReply != nil {
		turn.OnReply(reply)
		return nil
	}
	if g.send != nil {
		return g.send(turn.SubjectID, reply)
	}
	return nil
}
