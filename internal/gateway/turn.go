// internal/gateway/turn.go
package gateway

import (
	"context"

	"github.com/user/telerpg/internal/types"
)

// Turn is one unit of work on a subject's lane: an inbound event to
// process or an outbound notification to deliver. Turns on the same
// lane run strictly in order, so a completion can never interleave
// with a command for the same subject.
type Turn struct {
	ID        types.TurnID
	SubjectID types.SubjectID
	// Ctx is set by the queue when the turn is dequeued.
	Ctx context.Context
	// Do performs the work and returns the reply to deliver, if any.
	Do func(ctx context.Context) (*types.Reply, error)
	// OnReply delivers the reply. Nil replies are not delivered.
	OnReply func(*types.Reply)
}

// NewTurn creates a Turn with a fresh ID.
func NewTurn(subject types.SubjectID, do func(ctx context.Context) (*types.Reply, error)) *Turn {
	return &Turn{
		ID:        types.NewTurnID(),
		SubjectID: subject,
		Do:        do,
	}
}
